// Package phase implements the linear story-progression state machine.
//
// Phases are numbered 0..Max and complete strictly in order: only the
// current phase can be completed, and completing it advances the current
// phase by exactly one. Attempts to complete any other phase are rejected
// with a diagnostic and no state change — that rejection is the engine's
// core ordering guarantee.
package phase

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/MrWong99/fabula/internal/event"
	"github.com/MrWong99/fabula/internal/script"
)

// DefaultMax matches the original title's story outline (phases 0..12).
const DefaultMax = 12

// Sequencer tracks the player's current phase and the set of completed
// phases. All methods are safe for concurrent use.
type Sequencer struct {
	mu        sync.Mutex
	current   int
	completed map[int]struct{}

	max       int
	dialogues []*script.Dialogue
	bus       *event.Bus
}

// Config holds the construction parameters for a [Sequencer].
type Config struct {
	// Max is the highest phase index. Default: [DefaultMax].
	Max int

	// Dialogues is the per-phase main dialogue table, indexed 0..Max.
	// May be shorter or nil; lookups outside it return nil with a
	// diagnostic.
	Dialogues []*script.Dialogue

	// Bus receives phase-completed and phase-started notifications.
	// May be nil.
	Bus *event.Bus
}

// New creates a Sequencer starting at phase 0 with nothing completed.
func New(cfg Config) *Sequencer {
	if cfg.Max <= 0 {
		cfg.Max = DefaultMax
	}
	return &Sequencer{
		completed: make(map[int]struct{}),
		max:       cfg.Max,
		dialogues: cfg.Dialogues,
		bus:       cfg.Bus,
	}
}

// CurrentPhase returns the phase the player is in.
func (s *Sequencer) CurrentPhase() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Max returns the highest phase index.
func (s *Sequencer) Max() int {
	return s.max
}

// CanAccessPhase reports whether p is reachable: phase 0 (the intro) is
// always accessible, and otherwise only the current phase and earlier
// ones are.
func (s *Sequencer) CanAccessPhase(p int) bool {
	if p == 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return p >= 0 && p <= s.current
}

// IsPhaseCompleted reports whether p has been completed.
func (s *Sequencer) IsPhaseCompleted(p int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.completed[p]
	return ok
}

// CompletedPhases returns a sorted snapshot of the completed set.
func (s *Sequencer) CompletedPhases() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.completed))
	for p := range s.completed {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// CompletePhase marks p complete and advances to the next phase.
//
// Completing any phase other than the current one is rejected with a
// warning and no state change. Completion itself is idempotent: the
// phase-completed notification fires only on the transition into the
// completed set. When the current phase is already Max the sequencer is
// terminal and no further advance happens.
func (s *Sequencer) CompletePhase(p int) {
	s.mu.Lock()

	if p != s.current {
		current := s.current
		s.mu.Unlock()
		slog.Warn("phase: out-of-order completion rejected", "phase", p, "current", current)
		return
	}

	var events []event.Event

	if _, done := s.completed[p]; !done {
		s.completed[p] = struct{}{}
		slog.Info("phase: completed", "phase", p)
		events = append(events, event.Event{Kind: event.PhaseCompleted, Phase: p})
	}

	if s.current < s.max {
		s.current++
		slog.Info("phase: started", "phase", s.current)
		events = append(events, event.Event{Kind: event.PhaseStarted, Phase: s.current})
	} else {
		slog.Info("phase: story complete", "phase", s.max)
	}
	s.mu.Unlock()

	if s.bus != nil {
		for _, ev := range events {
			s.bus.Publish(ev)
		}
	}
}

// PhaseDialogue returns the main dialogue for phase p from the authored
// table, or nil with a diagnostic when p is outside the table.
func (s *Sequencer) PhaseDialogue(p int) *script.Dialogue {
	if p < 0 || p >= len(s.dialogues) {
		slog.Error("phase: out of range", "phase", p, "max", s.max)
		return nil
	}
	return s.dialogues[p]
}

// ResetProgression returns to phase 0 with nothing completed.
func (s *Sequencer) ResetProgression() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = 0
	s.completed = make(map[int]struct{})
	slog.Info("phase: progression reset")
}
