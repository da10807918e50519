package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nstogner/plantchat/pkg/store"
	"github.com/nstogner/plantchat/pkg/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func TestKV(t *testing.T) {
	storetest.RunKV(t, func(t *testing.T) store.KV { return newTestStore(t) })
}

func TestBadLinesSkipped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SetStringList(ctx, "conversation/p1", []string{"a"}); err != nil {
		t.Fatalf("SetStringList: %v", err)
	}
	path := s.path("conversation/p1")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	f.WriteString("not json\n\n\"b\"\n")
	f.Close()

	got, err := s.GetStringList(ctx, "conversation/p1")
	if err != nil {
		t.Fatalf("GetStringList: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("got %v, want [a b]", got)
	}
}

func TestNoTempFilesLeft(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.SetStringList(ctx, "conversation/p1", []string{"x"}); err != nil {
			t.Fatalf("SetStringList: %v", err)
		}
	}
	matches, _ := filepath.Glob(filepath.Join(s.dir, ".tmp-*"))
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}
