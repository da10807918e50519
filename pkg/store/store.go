package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nstogner/plantchat/pkg/domain"
)

const (
	// DefaultRetention is the number of finalized messages kept on disk.
	DefaultRetention = 50

	keyPrefix = "conversation/"
)

// Key returns the backend key for a conversation id.
func Key(conversationID string) string {
	return keyPrefix + conversationID
}

// ConversationID is the inverse of Key. The boolean is false for keys that
// do not belong to a conversation.
func ConversationID(key string) (string, bool) {
	return strings.CutPrefix(key, keyPrefix)
}

// ConversationStore persists one conversation under a single key.
type ConversationStore struct {
	kv        KV
	key       string
	retention int
}

// NewConversationStore returns a store for the conversation with the given id.
// A non-positive retention selects DefaultRetention.
func NewConversationStore(kv KV, conversationID string, retention int) *ConversationStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &ConversationStore{kv: kv, key: Key(conversationID), retention: retention}
}

// Key returns the backend key this store writes to.
func (s *ConversationStore) Key() string { return s.key }

// Load returns the persisted conversation, oldest first. Entries that fail to
// decode or validate are dropped individually. A backend failure is logged and
// yields an empty conversation.
func (s *ConversationStore) Load(ctx context.Context) []domain.Message {
	raw, err := s.kv.GetStringList(ctx, s.key)
	if err != nil {
		slog.Warn("Failed to load conversation, starting empty", "key", s.key, "error", err)
		return nil
	}

	msgs := make([]domain.Message, 0, len(raw))
	for i, entry := range raw {
		m, err := decodeMessage(entry)
		if err != nil {
			slog.Warn("Dropping corrupt conversation entry", "key", s.key, "index", i, "error", err)
			continue
		}
		msgs = append(msgs, m)
	}
	slog.Debug("Loaded conversation", "key", s.key, "messages", len(msgs), "dropped", len(raw)-len(msgs))
	return msgs
}

// Save overwrites the persisted conversation with the newest finalized
// messages, up to the retention bound. Drafts are never written.
func (s *ConversationStore) Save(ctx context.Context, msgs []domain.Message) error {
	kept := domain.Tail(domain.Finalized(msgs), s.retention)
	raw := make([]string, 0, len(kept))
	for _, m := range kept {
		data, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encoding message %s: %w", m.ID, err)
		}
		raw = append(raw, string(data))
	}
	if err := s.kv.SetStringList(ctx, s.key, raw); err != nil {
		return fmt.Errorf("saving conversation %s: %w", s.key, err)
	}
	return nil
}

// Clear deletes the persisted conversation. It is idempotent.
func (s *ConversationStore) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("clearing conversation %s: %w", s.key, err)
	}
	return nil
}

func decodeMessage(entry string) (domain.Message, error) {
	var m domain.Message
	if err := json.Unmarshal([]byte(entry), &m); err != nil {
		return domain.Message{}, err
	}
	if m.ID == "" {
		return domain.Message{}, fmt.Errorf("missing id")
	}
	if !m.Role.Valid() {
		return domain.Message{}, fmt.Errorf("invalid role %q", m.Role)
	}
	if m.IsDraft {
		return domain.Message{}, fmt.Errorf("persisted draft %s", m.ID)
	}
	return m, nil
}
