package transport

import (
	"strings"

	"github.com/nstogner/plantchat/pkg/domain"
)

// Turns flattens the request into the chronological list of turns sent to the
// remote service: the history window followed by the prompt. A non-empty
// Context is prepended to the first user turn.
func (r Request) Turns() []Turn {
	turns := make([]Turn, 0, len(r.History)+1)
	turns = append(turns, r.History...)
	turns = append(turns, Turn{Role: domain.RoleUser, Text: r.Prompt})

	ctxText := strings.TrimSpace(r.Context)
	if ctxText == "" {
		return turns
	}
	for i := range turns {
		if turns[i].Role == domain.RoleUser {
			turns[i].Text = "Context: " + ctxText + "\n\n" + turns[i].Text
			break
		}
	}
	return turns
}

// WireRole maps a conversation role onto the remote service's role names.
func WireRole(r domain.Role) string {
	if r == domain.RoleAssistant {
		return "model"
	}
	return "user"
}
