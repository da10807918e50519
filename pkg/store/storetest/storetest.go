// Package storetest holds conformance tests shared by every store.KV backend.
package storetest

import (
	"context"
	"testing"

	"github.com/nstogner/plantchat/pkg/store"
)

// RunKV exercises the store.KV contract against backends built by newKV.
func RunKV(t *testing.T, newKV func(t *testing.T) store.KV) {
	t.Run("absent key is empty", func(t *testing.T) {
		kv := newKV(t)
		got, err := kv.GetStringList(context.Background(), "conversation/missing")
		if err != nil {
			t.Fatalf("GetStringList: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("got %v, want empty", got)
		}
	})

	t.Run("set then get preserves order", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()
		want := []string{"c", "a", "b", `{"x":"line\nbreak"}`}
		if err := kv.SetStringList(ctx, "k", want); err != nil {
			t.Fatalf("SetStringList: %v", err)
		}
		got, err := kv.GetStringList(ctx, "k")
		if err != nil {
			t.Fatalf("GetStringList: %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("set overwrites", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()
		if err := kv.SetStringList(ctx, "k", []string{"1", "2", "3"}); err != nil {
			t.Fatalf("SetStringList: %v", err)
		}
		if err := kv.SetStringList(ctx, "k", []string{"4"}); err != nil {
			t.Fatalf("SetStringList: %v", err)
		}
		got, _ := kv.GetStringList(ctx, "k")
		if len(got) != 1 || got[0] != "4" {
			t.Errorf("got %v, want [4]", got)
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()
		kv.SetStringList(ctx, "conversation/a", []string{"a"})
		kv.SetStringList(ctx, "conversation/b", []string{"b"})
		if err := kv.Delete(ctx, "conversation/a"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		got, _ := kv.GetStringList(ctx, "conversation/b")
		if len(got) != 1 || got[0] != "b" {
			t.Errorf("got %v, want [b]", got)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		kv := newKV(t)
		ctx := context.Background()
		kv.SetStringList(ctx, "k", []string{"x"})
		for i := 0; i < 2; i++ {
			if err := kv.Delete(ctx, "k"); err != nil {
				t.Fatalf("Delete #%d: %v", i+1, err)
			}
		}
		got, err := kv.GetStringList(ctx, "k")
		if err != nil || len(got) != 0 {
			t.Errorf("after delete got %v, %v", got, err)
		}
	})

	t.Run("keys by prefix", func(t *testing.T) {
		kv := newKV(t)
		lister, ok := kv.(store.Lister)
		if !ok {
			t.Skip("backend does not list keys")
		}
		ctx := context.Background()
		kv.SetStringList(ctx, "conversation/b", []string{"1"})
		kv.SetStringList(ctx, "conversation/a", []string{"1"})
		kv.SetStringList(ctx, "other", []string{"1"})
		keys, err := lister.Keys(ctx, "conversation/")
		if err != nil {
			t.Fatalf("Keys: %v", err)
		}
		if len(keys) != 2 || keys[0] != "conversation/a" || keys[1] != "conversation/b" {
			t.Errorf("keys = %v", keys)
		}
	})
}
