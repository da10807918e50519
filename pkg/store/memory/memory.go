package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/nstogner/plantchat/pkg/store"
)

// KV is a simple in-memory implementation of store.KV.
// It is NOT persistent and is only suitable for tests and local mode.
type KV struct {
	mu    sync.RWMutex
	lists map[string][]string
}

var (
	_ store.KV     = (*KV)(nil)
	_ store.Lister = (*KV)(nil)
)

// New creates an empty KV.
func New() *KV {
	return &KV{lists: make(map[string][]string)}
}

func (s *KV) GetStringList(ctx context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values, ok := s.lists[key]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), values...), nil
}

func (s *KV) SetStringList(ctx context.Context, key string, values []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lists[key] = append([]string(nil), values...)
	return nil
}

func (s *KV) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.lists, key)
	return nil
}

func (s *KV) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.lists {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
