package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by lookups for ids that do not exist. List reads
// never return it; an absent list is simply empty.
var ErrNotFound = errors.New("not found")

// KV is the key-value backend a ConversationStore persists through. Each key
// holds an ordered list of opaque strings.
type KV interface {
	// GetStringList returns the list stored under key, or nil with a nil error
	// when the key is absent.
	GetStringList(ctx context.Context, key string) ([]string, error)

	// SetStringList replaces the list stored under key. Readers observe either
	// the old list or the new one, never a mix.
	SetStringList(ctx context.Context, key string, values []string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Lister is implemented by backends that can enumerate their keys.
type Lister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}
