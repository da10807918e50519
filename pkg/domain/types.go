package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single turn in a conversation.
// Only the most recently appended message may be a draft. Once a draft is
// finalized its text never changes.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	IsDraft   bool      `json:"is_draft"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage returns a finalized message with a fresh ID.
func NewMessage(role Role, text string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
}

// NewDraft returns an empty assistant draft with a fresh ID.
func NewDraft() Message {
	m := NewMessage(RoleAssistant, "")
	m.IsDraft = true
	return m
}

// Finalized returns only the non-draft messages of msgs, preserving order.
func Finalized(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.IsDraft {
			out = append(out, m)
		}
	}
	return out
}

// Tail returns the last n messages of msgs. A non-positive n returns nil.
func Tail(msgs []Message, n int) []Message {
	if n <= 0 {
		return nil
	}
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
