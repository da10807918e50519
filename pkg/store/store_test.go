package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/nstogner/plantchat/pkg/domain"
	"github.com/nstogner/plantchat/pkg/store"
	"github.com/nstogner/plantchat/pkg/store/memory"
)

type failingKV struct{ err error }

func (f failingKV) GetStringList(context.Context, string) ([]string, error) { return nil, f.err }
func (f failingKV) SetStringList(context.Context, string, []string) error  { return f.err }
func (f failingKV) Delete(context.Context, string) error                    { return f.err }

func conversation(n int) []domain.Message {
	msgs := make([]domain.Message, 0, n)
	for i := 0; i < n; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		msgs = append(msgs, domain.NewMessage(role, fmt.Sprintf("m%d", i)))
	}
	return msgs
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := store.NewConversationStore(memory.New(), "p1", 0)
	want := conversation(5)
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got := s.Load(ctx)
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Role != want[i].Role || got[i].Text != want[i].Text {
			t.Errorf("message %d = %+v, want %+v", i, got[i], want[i])
		}
		if !got[i].CreatedAt.Equal(want[i].CreatedAt) {
			t.Errorf("message %d CreatedAt = %v, want %v", i, got[i].CreatedAt, want[i].CreatedAt)
		}
	}
}

func TestSaveKeepsNewestRetention(t *testing.T) {
	ctx := context.Background()
	s := store.NewConversationStore(memory.New(), "p1", 50)
	msgs := conversation(60)
	if err := s.Save(ctx, msgs); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got := s.Load(ctx)
	if len(got) != 50 {
		t.Fatalf("len = %d, want 50", len(got))
	}
	if got[0].Text != "m10" || got[49].Text != "m59" {
		t.Errorf("kept %q..%q, want m10..m59", got[0].Text, got[49].Text)
	}
}

func TestSaveExcludesDraft(t *testing.T) {
	ctx := context.Background()
	s := store.NewConversationStore(memory.New(), "p1", 0)
	msgs := append(conversation(2), domain.NewDraft())
	msgs[2].Text = "partial"
	if err := s.Save(ctx, msgs); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got := s.Load(ctx)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for _, m := range got {
		if m.IsDraft {
			t.Errorf("draft persisted: %+v", m)
		}
	}
}

func TestLoadDropsCorruptEntries(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	good := conversation(2)
	a, _ := json.Marshal(good[0])
	b, _ := json.Marshal(good[1])
	draft, _ := json.Marshal(domain.NewDraft())
	kv.SetStringList(ctx, store.Key("p1"), []string{
		string(a),
		`{"id":"x","role":"assistant","text":`,
		`{"id":"","role":"user","text":"no id"}`,
		`{"id":"y","role":"system","text":"bad role"}`,
		string(draft),
		string(b),
	})

	got := store.NewConversationStore(kv, "p1", 0).Load(ctx)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != good[0].ID || got[1].ID != good[1].ID {
		t.Errorf("order not preserved: %v, %v", got[0].ID, got[1].ID)
	}
}

func TestLoadMissingIsEmpty(t *testing.T) {
	got := store.NewConversationStore(memory.New(), "nope", 0).Load(context.Background())
	if len(got) != 0 {
		t.Errorf("got %v, want empty", got)
	}
}

func TestBackendFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk on fire")
	s := store.NewConversationStore(failingKV{err: boom}, "p1", 0)

	if got := s.Load(ctx); len(got) != 0 {
		t.Errorf("Load = %v, want empty", got)
	}
	if err := s.Save(ctx, conversation(1)); !errors.Is(err, boom) {
		t.Errorf("Save err = %v, want %v", err, boom)
	}
	if err := s.Clear(ctx); !errors.Is(err, boom) {
		t.Errorf("Clear err = %v, want %v", err, boom)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := store.NewConversationStore(memory.New(), "p1", 0)
	s.Save(ctx, conversation(3))
	for i := 0; i < 2; i++ {
		if err := s.Clear(ctx); err != nil {
			t.Fatalf("Clear #%d: %v", i+1, err)
		}
	}
	if got := s.Load(ctx); len(got) != 0 {
		t.Errorf("after clear got %d messages", len(got))
	}
}

func TestKeyRoundTrip(t *testing.T) {
	id, ok := store.ConversationID(store.Key("plant-42"))
	if !ok || id != "plant-42" {
		t.Errorf("ConversationID = %q, %v", id, ok)
	}
	if _, ok := store.ConversationID("other/x"); ok {
		t.Error("foreign key accepted")
	}
}
