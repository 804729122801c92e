package kv

import (
	"context"
	"testing"
)

func TestMemStore_SetGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	if err := s.Set(ctx, "seen", "a,b,c"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := s.Get(ctx, "seen")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "a,b,c" {
		t.Errorf("Get() = %q, want %q", got, "a,b,c")
	}
}

func TestMemStore_GetMissingKey(t *testing.T) {
	s := NewMemStore()

	got, err := s.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "" {
		t.Errorf("Get() = %q, want empty string", got)
	}
}

func TestMemStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	if err := s.Set(ctx, "checkpoint", "phase11"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Delete(ctx, "checkpoint"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	got, _ := s.Get(ctx, "checkpoint")
	if got != "" {
		t.Errorf("Get() after Delete = %q, want empty string", got)
	}

	// Deleting an absent key is a no-op.
	if err := s.Delete(ctx, "checkpoint"); err != nil {
		t.Errorf("Delete() on absent key error = %v", err)
	}
}

func TestMemStore_ZeroValue(t *testing.T) {
	ctx := context.Background()
	var s MemStore

	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set() on zero value error = %v", err)
	}
	got, _ := s.Get(ctx, "k")
	if got != "v" {
		t.Errorf("Get() = %q, want %q", got, "v")
	}
	if err := s.Persist(ctx); err != nil {
		t.Errorf("Persist() error = %v", err)
	}
}
