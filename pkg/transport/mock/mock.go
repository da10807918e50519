// Package mock provides a Transport that runs without a remote service.
package mock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nstogner/plantchat/pkg/transport"
)

// Transport echoes the prompt back one word at a time. Prompts containing
// "#safety" or "#blocked" produce the matching block events, and "#fail"
// produces a failure after the first word, so every path can be exercised
// from a terminal.
type Transport struct {
	// Delay between words.
	Delay time.Duration
}

var _ transport.Transport = (*Transport)(nil)

// Stream implements transport.Transport.
func (m *Transport) Stream(ctx context.Context, req transport.Request) transport.Stream {
	p := transport.NewPipe(ctx)
	go func() {
		defer p.Finish()

		if strings.Contains(req.Prompt, "#blocked") {
			p.Send(transport.PromptBlocked("OTHER"))
			return
		}

		reply := fmt.Sprintf("Echo (%d prior turns): %s", len(req.History), req.Prompt)
		for i, word := range strings.SplitAfter(reply, " ") {
			if i > 0 && m.Delay > 0 {
				select {
				case <-time.After(m.Delay):
				case <-p.Context().Done():
					return
				}
			}
			if !p.Send(transport.Delta(word)) {
				return
			}
			if i == 0 && strings.Contains(req.Prompt, "#fail") {
				p.Send(transport.Failure(fmt.Errorf("mock: simulated failure")))
				return
			}
		}
		if strings.Contains(req.Prompt, "#safety") {
			p.Send(transport.SafetyBlocked(transport.FinishReasonSafety))
			return
		}
		p.Send(transport.Done())
	}()
	return p
}
