package phase

import (
	"reflect"
	"testing"

	"github.com/MrWong99/fabula/internal/event"
	"github.com/MrWong99/fabula/internal/script"
)

// recordEvents subscribes to both phase notifications and returns the
// captured stream.
func recordEvents(b *event.Bus) *[]event.Event {
	var got []event.Event
	b.Subscribe(event.PhaseCompleted, func(ev event.Event) { got = append(got, ev) })
	b.Subscribe(event.PhaseStarted, func(ev event.Event) { got = append(got, ev) })
	return &got
}

func TestSequencer_CompleteCurrentPhaseAdvances(t *testing.T) {
	bus := event.NewBus()
	got := recordEvents(bus)
	s := New(Config{Max: 12, Bus: bus})

	s.CompletePhase(0)

	if cur := s.CurrentPhase(); cur != 1 {
		t.Errorf("CurrentPhase() = %d, want 1", cur)
	}
	if !s.IsPhaseCompleted(0) {
		t.Error("IsPhaseCompleted(0) = false")
	}
	want := []event.Event{
		{Kind: event.PhaseCompleted, Phase: 0},
		{Kind: event.PhaseStarted, Phase: 1},
	}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("events = %v, want %v", *got, want)
	}
}

func TestSequencer_OutOfOrderCompletionRejected(t *testing.T) {
	bus := event.NewBus()
	got := recordEvents(bus)
	s := New(Config{Max: 12, Bus: bus})

	s.CompletePhase(3)
	s.CompletePhase(-1)

	if cur := s.CurrentPhase(); cur != 0 {
		t.Errorf("CurrentPhase() = %d, want 0 (unchanged)", cur)
	}
	if len(s.CompletedPhases()) != 0 {
		t.Errorf("CompletedPhases() = %v, want empty", s.CompletedPhases())
	}
	if len(*got) != 0 {
		t.Errorf("events = %v, want none", *got)
	}
}

func TestSequencer_RepeatedCompletionEmitsOnce(t *testing.T) {
	bus := event.NewBus()
	got := recordEvents(bus)
	s := New(Config{Max: 12, Bus: bus})

	// Calling CompletePhase(0) repeatedly: only the first call succeeds,
	// the rest are out-of-order (current is already 1).
	for range 5 {
		s.CompletePhase(0)
	}

	if cur := s.CurrentPhase(); cur != 1 {
		t.Errorf("CurrentPhase() = %d, want 1", cur)
	}
	if want := []int{0}; !reflect.DeepEqual(s.CompletedPhases(), want) {
		t.Errorf("CompletedPhases() = %v, want %v", s.CompletedPhases(), want)
	}
	want := []event.Event{
		{Kind: event.PhaseCompleted, Phase: 0},
		{Kind: event.PhaseStarted, Phase: 1},
	}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("events = %v, want exactly one completed and one started", *got)
	}
}

func TestSequencer_TerminalState(t *testing.T) {
	s := New(Config{Max: 3})

	for p := 0; p <= 3; p++ {
		s.CompletePhase(p)
	}

	if cur := s.CurrentPhase(); cur != 3 {
		t.Errorf("CurrentPhase() = %d, want terminal 3", cur)
	}
	if want := []int{0, 1, 2, 3}; !reflect.DeepEqual(s.CompletedPhases(), want) {
		t.Errorf("CompletedPhases() = %v, want %v", s.CompletedPhases(), want)
	}

	// Further completions of the terminal phase change nothing.
	s.CompletePhase(3)
	if cur := s.CurrentPhase(); cur != 3 {
		t.Errorf("CurrentPhase() = %d after terminal re-complete, want 3", cur)
	}
}

func TestSequencer_CanAccessPhase(t *testing.T) {
	s := New(Config{Max: 12})

	tests := []struct {
		name  string
		phase int
		want  bool
	}{
		{"intro always accessible", 0, true},
		{"next phase locked", 1, false},
		{"negative phase locked", -2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.CanAccessPhase(tt.phase); got != tt.want {
				t.Errorf("CanAccessPhase(%d) = %v, want %v", tt.phase, got, tt.want)
			}
		})
	}

	s.CompletePhase(0)
	if !s.CanAccessPhase(1) {
		t.Error("CanAccessPhase(1) = false after completing phase 0")
	}
	if s.CanAccessPhase(2) {
		t.Error("CanAccessPhase(current+1) = true, want false")
	}
}

func TestSequencer_PhaseDialogue(t *testing.T) {
	d0 := &script.Dialogue{ID: "phase0_intro", Phase: 0}
	s := New(Config{Max: 1, Dialogues: []*script.Dialogue{d0, nil}})

	if got := s.PhaseDialogue(0); got != d0 {
		t.Errorf("PhaseDialogue(0) = %v, want the authored dialogue", got)
	}
	if got := s.PhaseDialogue(5); got != nil {
		t.Errorf("PhaseDialogue(5) = %v, want nil for out-of-range", got)
	}
	if got := s.PhaseDialogue(-1); got != nil {
		t.Errorf("PhaseDialogue(-1) = %v, want nil", got)
	}
}

func TestSequencer_ResetProgression(t *testing.T) {
	s := New(Config{Max: 12})
	s.CompletePhase(0)
	s.CompletePhase(1)

	s.ResetProgression()

	if cur := s.CurrentPhase(); cur != 0 {
		t.Errorf("CurrentPhase() = %d after reset, want 0", cur)
	}
	if len(s.CompletedPhases()) != 0 {
		t.Errorf("CompletedPhases() = %v after reset, want empty", s.CompletedPhases())
	}
}
