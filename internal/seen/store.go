// Package seen tracks which dialogues the player has watched and the
// current narrative checkpoint, and persists both through the save-data
// key/value store.
//
// The seen-set only grows: ids are added by MarkSeen or restored by
// LoadCheckpoint, and removed only by the explicit new-game and
// delete-save operations. MarkSeen is deliberately memory-only — the set
// reaches durable storage when a checkpoint is saved, so a crash between
// checkpoints replays dialogue instead of losing progress consistency.
package seen

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/MrWong99/fabula/pkg/kv"
)

// delimiter joins seen-dialogue ids into a single persisted string.
// Dialogue ids must not contain it; MarkSeen enforces that.
const delimiter = ","

// Default storage keys for the two persisted values.
const (
	DefaultSeenKey       = "fabula.seen_dialogues"
	DefaultCheckpointKey = "fabula.checkpoint"
)

// Store is the seen-dialogue registry. All methods are safe for
// concurrent use.
type Store struct {
	mu         sync.RWMutex
	seen       map[string]struct{}
	checkpoint string

	kv            kv.Store
	seenKey       string
	checkpointKey string
}

// Config holds the dependencies for a [Store].
type Config struct {
	// KV is the durable storage backend. May be nil for a purely in-memory
	// store; checkpoint operations then no-op with a diagnostic.
	KV kv.Store

	// SeenKey overrides [DefaultSeenKey].
	SeenKey string

	// CheckpointKey overrides [DefaultCheckpointKey].
	CheckpointKey string
}

// New creates an empty Store.
func New(cfg Config) *Store {
	if cfg.SeenKey == "" {
		cfg.SeenKey = DefaultSeenKey
	}
	if cfg.CheckpointKey == "" {
		cfg.CheckpointKey = DefaultCheckpointKey
	}
	return &Store{
		seen:          make(map[string]struct{}),
		kv:            cfg.KV,
		seenKey:       cfg.SeenKey,
		checkpointKey: cfg.CheckpointKey,
	}
}

// MarkSeen records the dialogue as seen. Empty ids and ids containing the
// persistence delimiter are rejected with a log line and no state change.
// Marking an already-seen id is a no-op. The set is NOT persisted here;
// see [Store.SaveCheckpoint].
func (s *Store) MarkSeen(id string) {
	if id == "" {
		slog.Warn("seen: attempted to mark dialogue with empty id")
		return
	}
	if strings.Contains(id, delimiter) {
		slog.Warn("seen: dialogue id contains reserved delimiter, not recording", "id", id)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, already := s.seen[id]; already {
		return
	}
	s.seen[id] = struct{}{}
	slog.Debug("seen: dialogue marked", "id", id, "total", len(s.seen))
}

// HasSeen reports whether the dialogue has been marked seen.
func (s *Store) HasSeen(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.seen[id]
	return ok
}

// HasSeenAll reports whether every id in ids has been seen.
// Vacuously true for an empty or nil slice.
func (s *Store) HasSeenAll(ids []string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range ids {
		if _, ok := s.seen[id]; !ok {
			return false
		}
	}
	return true
}

// Count returns the number of seen dialogues.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seen)
}

// Seen returns a sorted snapshot of the seen-set, for diagnostics.
func (s *Store) Seen() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.seen))
	for id := range s.seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Checkpoint returns the current checkpoint id, or "" when none is set.
func (s *Store) Checkpoint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoint
}

// HasCheckpoint reports whether a checkpoint is currently set.
func (s *Store) HasCheckpoint() bool {
	return s.Checkpoint() != ""
}

// SaveCheckpoint sets the current checkpoint and persists the full
// seen-set together with it. On any storage error the in-memory
// checkpoint is rolled back so the caller observes unchanged state.
func (s *Store) SaveCheckpoint(ctx context.Context, checkpointID string) error {
	if s.kv == nil {
		slog.Warn("seen: no storage configured, checkpoint not saved", "checkpoint", checkpointID)
		return fmt.Errorf("seen: no storage configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.checkpoint
	s.checkpoint = checkpointID

	blob := strings.Join(s.sortedLocked(), delimiter)
	if err := s.writeThrough(ctx, blob, checkpointID); err != nil {
		s.checkpoint = prev
		return fmt.Errorf("seen: save checkpoint %q: %w", checkpointID, err)
	}

	slog.Info("seen: checkpoint saved", "checkpoint", checkpointID, "dialogues", len(s.seen))
	return nil
}

// LoadCheckpoint replaces the in-memory state with whatever is persisted
// and reports whether a non-empty checkpoint was found. Missing or empty
// stored values load as an empty set and no checkpoint — never an error
// by themselves.
func (s *Store) LoadCheckpoint(ctx context.Context) (bool, error) {
	if s.kv == nil {
		slog.Warn("seen: no storage configured, nothing to load")
		return false, nil
	}

	blob, err := s.kv.Get(ctx, s.seenKey)
	if err != nil {
		return false, fmt.Errorf("seen: load seen-set: %w", err)
	}
	checkpoint, err := s.kv.Get(ctx, s.checkpointKey)
	if err != nil {
		return false, fmt.Errorf("seen: load checkpoint: %w", err)
	}

	loaded := make(map[string]struct{})
	for _, id := range strings.Split(blob, delimiter) {
		if id != "" {
			loaded[id] = struct{}{}
		}
	}

	s.mu.Lock()
	s.seen = loaded
	s.checkpoint = checkpoint
	s.mu.Unlock()

	if checkpoint == "" {
		slog.Info("seen: no checkpoint in save data")
		return false, nil
	}
	slog.Info("seen: checkpoint loaded", "checkpoint", checkpoint, "dialogues", len(loaded))
	return true, nil
}

// ClearAllSeen wipes the in-memory seen-set and checkpoint without
// touching durable storage. This is the "new game" reset; the old save
// survives until the next SaveCheckpoint or an explicit DeleteSaveData.
func (s *Store) ClearAllSeen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]struct{})
	s.checkpoint = ""
	slog.Info("seen: all seen dialogues cleared")
}

// DeleteSaveData erases the persisted entries and clears in-memory state.
// Irreversible.
func (s *Store) DeleteSaveData(ctx context.Context) error {
	s.mu.Lock()
	s.seen = make(map[string]struct{})
	s.checkpoint = ""
	s.mu.Unlock()

	if s.kv == nil {
		return nil
	}
	if err := s.kv.Delete(ctx, s.seenKey); err != nil {
		return fmt.Errorf("seen: delete seen-set: %w", err)
	}
	if err := s.kv.Delete(ctx, s.checkpointKey); err != nil {
		return fmt.Errorf("seen: delete checkpoint: %w", err)
	}
	if err := s.kv.Persist(ctx); err != nil {
		return fmt.Errorf("seen: persist deletion: %w", err)
	}
	slog.Info("seen: save data deleted")
	return nil
}

// writeThrough stores both persisted values and flushes. Caller holds s.mu.
func (s *Store) writeThrough(ctx context.Context, blob, checkpoint string) error {
	if err := s.kv.Set(ctx, s.seenKey, blob); err != nil {
		return err
	}
	if err := s.kv.Set(ctx, s.checkpointKey, checkpoint); err != nil {
		return err
	}
	return s.kv.Persist(ctx)
}

// sortedLocked returns the seen ids sorted. Caller holds s.mu.
func (s *Store) sortedLocked() []string {
	out := make([]string, 0, len(s.seen))
	for id := range s.seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
