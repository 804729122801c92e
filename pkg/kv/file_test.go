package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_PersistAndReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "save.json")

	s := NewFileStore(path)
	if err := s.Set(ctx, "seen", "intro,gas_station"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(ctx, "checkpoint", "phase11_entrance"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Persist(ctx); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	// A fresh store over the same file sees the persisted values.
	reloaded := NewFileStore(path)
	got, err := reloaded.Get(ctx, "seen")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "intro,gas_station" {
		t.Errorf("Get(seen) = %q, want %q", got, "intro,gas_station")
	}
	got, _ = reloaded.Get(ctx, "checkpoint")
	if got != "phase11_entrance" {
		t.Errorf("Get(checkpoint) = %q, want %q", got, "phase11_entrance")
	}
}

func TestFileStore_MissingFileReadsEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "does-not-exist.json"))

	got, err := s.Get(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "" {
		t.Errorf("Get() = %q, want empty string", got)
	}
}

func TestFileStore_SetIsBufferedUntilPersist(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "save.json")

	s := NewFileStore(path)
	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file %q exists before Persist", path)
	}
	if err := s.Persist(ctx); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file %q missing after Persist: %v", path, err)
	}
}

func TestFileStore_DeleteRemovesKey(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "save.json")

	s := NewFileStore(path)
	if err := s.Set(ctx, "seen", "x"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Delete(ctx, "seen"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Persist(ctx); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	reloaded := NewFileStore(path)
	got, _ := reloaded.Get(ctx, "seen")
	if got != "" {
		t.Errorf("Get() after Delete+Persist = %q, want empty string", got)
	}
}

func TestFileStore_CorruptFileSurfacesError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "save.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(path)
	if _, err := s.Get(context.Background(), "k"); err == nil {
		t.Error("Get() on corrupt file returned nil error, want parse error")
	}

	// After the error, the store behaves as empty.
	got, err := s.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if got != "" {
		t.Errorf("Get() = %q, want empty string", got)
	}
}
