package trigger

import (
	"testing"

	"github.com/MrWong99/fabula/internal/phase"
	"github.com/MrWong99/fabula/internal/script"
	"github.com/MrWong99/fabula/internal/seen"
	"github.com/MrWong99/fabula/pkg/locale"
)

type fakeStarter struct {
	showing bool
	started []string
}

func (s *fakeStarter) Play(d *script.Dialogue) bool {
	s.started = append(s.started, d.ID)
	return true
}

func (s *fakeStarter) IsShowing() bool { return s.showing }

type fakeTasks map[string]bool

func (f fakeTasks) IsCompleted(id string) bool { return f[id] }

type fakeInventory map[string]bool

func (f fakeInventory) HasItem(id string) bool { return f[id] }

func line(id string) script.Line {
	return script.Line{ID: id, Message: script.Text{locale.English: "..."}}
}

func testLibrary(t *testing.T, dialogues ...script.Dialogue) *script.Library {
	t.Helper()
	lib, err := script.NewLibrary(&script.File{Dialogues: dialogues})
	if err != nil {
		t.Fatalf("NewLibrary: %v", err)
	}
	return lib
}

type deps struct {
	lib     *script.Library
	seen    *seen.Store
	phases  *phase.Sequencer
	starter *fakeStarter
}

func newDeps(t *testing.T, dialogues ...script.Dialogue) *deps {
	t.Helper()
	return &deps{
		lib:     testLibrary(t, dialogues...),
		seen:    seen.New(seen.Config{}),
		phases:  phase.New(phase.Config{Max: 3}),
		starter: &fakeStarter{},
	}
}

func (d *deps) gate(cfg Config) *Gate {
	cfg.Library = d.lib
	cfg.Seen = d.seen
	cfg.Phases = d.phases
	cfg.Engine = d.starter
	return New(cfg)
}

func TestEnterFiresOnce(t *testing.T) {
	d := newDeps(t, script.Dialogue{ID: "greet", Phase: script.PhaseNone, Lines: []script.Line{line("l1")}})
	g := d.gate(Config{DialogueID: "greet"})

	if !g.Enter("Player") {
		t.Fatal("first enter did not fire")
	}
	if g.Enter("Player") {
		t.Fatal("fired latch did not hold on re-enter")
	}
	if !g.HasFired() {
		t.Fatal("HasFired = false after firing")
	}
	if len(d.starter.started) != 1 || d.starter.started[0] != "greet" {
		t.Fatalf("started dialogues = %v", d.starter.started)
	}
}

func TestResetRearmsGate(t *testing.T) {
	d := newDeps(t, script.Dialogue{ID: "greet", Phase: script.PhaseNone, Lines: []script.Line{line("l1")}})
	g := d.gate(Config{DialogueID: "greet"})

	g.Enter("Player")
	g.Reset()
	if g.HasFired() {
		t.Fatal("HasFired = true after Reset")
	}
	if !g.Enter("Player") {
		t.Fatal("reset gate did not fire again")
	}
}

func TestTagMismatchRejected(t *testing.T) {
	d := newDeps(t, script.Dialogue{ID: "greet", Phase: script.PhaseNone, Lines: []script.Line{line("l1")}})
	g := d.gate(Config{DialogueID: "greet"})

	if g.Enter("Crate") {
		t.Fatal("gate fired for a non-player activator")
	}
	if g.HasFired() {
		t.Fatal("rejected attempt set the fired latch")
	}
}

func TestModeSelectsEvent(t *testing.T) {
	tests := []struct {
		name string
		mode Mode
		fire func(g *Gate) bool
	}{
		{"enter gate ignores exit", OnEnter, func(g *Gate) bool { return g.Exit("Player") }},
		{"exit gate ignores enter", OnExit, func(g *Gate) bool { return g.Enter("Player") }},
		{"stay gate ignores enter", OnStay, func(g *Gate) bool { return g.Enter("Player") }},
		{"manual gate ignores enter", Manual, func(g *Gate) bool { return g.Enter("Player") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDeps(t, script.Dialogue{ID: "greet", Phase: script.PhaseNone, Lines: []script.Line{line("l1")}})
			g := d.gate(Config{DialogueID: "greet", Mode: tt.mode})
			if tt.fire(g) {
				t.Fatalf("%s fired for the wrong event", tt.mode)
			}
		})
	}
}

func TestUnknownDialogueRejected(t *testing.T) {
	d := newDeps(t, script.Dialogue{ID: "greet", Phase: script.PhaseNone, Lines: []script.Line{line("l1")}})
	g := d.gate(Config{DialogueID: "ghost"})

	if g.Enter("Player") {
		t.Fatal("gate fired for a dialogue the library does not have")
	}
}

func TestRequiredPhaseGatesActivation(t *testing.T) {
	// The phase requirement is the gate's, not the dialogue's: a gate can
	// demand story progress for a dialogue with no phase of its own.
	d := newDeps(t, script.Dialogue{ID: "late", Phase: script.PhaseNone, Lines: []script.Line{line("l1")}})
	g := d.gate(Config{DialogueID: "late", RequiredPhase: 2})

	if g.Enter("Player") {
		t.Fatal("gate fired for a phase the player has not reached")
	}

	d.phases.CompletePhase(0)
	d.phases.CompletePhase(1)
	if !g.Enter("Player") {
		t.Fatal("gate did not fire once the phase became current")
	}
}

func TestPhaseFreeGateIgnoresDialoguePhase(t *testing.T) {
	// A gate with no phase requirement starts a later-phase dialogue; the
	// dialogue's own phase association only matters at completion time.
	d := newDeps(t, script.Dialogue{ID: "finale", Phase: 3, Lines: []script.Line{line("l1")}})
	g := d.gate(Config{DialogueID: "finale", RequiredPhase: script.PhaseNone})

	if !g.Enter("Player") {
		t.Fatal("phase-free gate did not fire a later-phase dialogue")
	}
}

func TestRepeatableGateRefires(t *testing.T) {
	d := newDeps(t, script.Dialogue{ID: "ambient_gulls", Phase: script.PhaseNone, Lines: []script.Line{line("l1")}})
	g := d.gate(Config{DialogueID: "ambient_gulls", Repeatable: true})

	if !g.Enter("Player") {
		t.Fatal("first enter did not fire")
	}
	if !g.Enter("Player") {
		t.Fatal("repeatable gate did not re-fire without a Reset")
	}
	if !g.HasFired() {
		t.Fatal("HasFired = false after firing")
	}
	if len(d.starter.started) != 2 {
		t.Fatalf("started dialogues = %v, want two plays", d.starter.started)
	}
}

func TestSeenPrerequisites(t *testing.T) {
	d := newDeps(t,
		script.Dialogue{ID: "intro", Phase: script.PhaseNone, Lines: []script.Line{line("l1")}},
		script.Dialogue{ID: "followup", Phase: script.PhaseNone, RequiredDialogues: []string{"intro"}, Lines: []script.Line{line("l1")}},
		script.Dialogue{ID: "once", Phase: script.PhaseNone, OneShot: true, Lines: []script.Line{line("l1")}},
	)

	g := d.gate(Config{DialogueID: "followup"})
	if g.Enter("Player") {
		t.Fatal("gate fired before the required dialogue was seen")
	}
	d.seen.MarkSeen("intro")
	if !g.Enter("Player") {
		t.Fatal("gate did not fire after the required dialogue was seen")
	}

	d.seen.MarkSeen("once")
	once := d.gate(Config{DialogueID: "once"})
	if once.Enter("Player") {
		t.Fatal("gate fired a one-shot dialogue that was already seen")
	}
}

func TestTaskAndItemPrerequisites(t *testing.T) {
	d := newDeps(t, script.Dialogue{
		ID:                "reward",
		Phase:             script.PhaseNone,
		RequiredTasks:     []string{"find_key"},
		RequiredItems:     []string{"rusty_key"},
		Lines:             []script.Line{line("l1")},
	})

	tasks := fakeTasks{}
	items := fakeInventory{}
	g := d.gate(Config{DialogueID: "reward", Tasks: tasks, Inventory: items})

	if g.Enter("Player") {
		t.Fatal("gate fired with the task incomplete")
	}
	tasks["find_key"] = true
	if g.Enter("Player") {
		t.Fatal("gate fired with the item missing")
	}
	items["rusty_key"] = true
	if !g.Enter("Player") {
		t.Fatal("gate did not fire with all prerequisites met")
	}
}

func TestMissingSourcesFailClosed(t *testing.T) {
	d := newDeps(t, script.Dialogue{
		ID:            "reward",
		Phase:         script.PhaseNone,
		RequiredTasks: []string{"find_key"},
		Lines:         []script.Line{line("l1")},
	})
	g := d.gate(Config{DialogueID: "reward"}) // no task source wired

	if g.Enter("Player") {
		t.Fatal("gate fired task-gated dialogue without a task source")
	}
}

func TestBusyEngineRejected(t *testing.T) {
	d := newDeps(t, script.Dialogue{ID: "greet", Phase: script.PhaseNone, Lines: []script.Line{line("l1")}})
	d.starter.showing = true
	g := d.gate(Config{DialogueID: "greet"})

	if g.Enter("Player") {
		t.Fatal("gate fired while another dialogue was showing")
	}
	if g.HasFired() {
		t.Fatal("busy rejection set the fired latch")
	}
}

func TestManualActivation(t *testing.T) {
	d := newDeps(t, script.Dialogue{ID: "greet", Phase: script.PhaseNone, Lines: []script.Line{line("l1")}})
	d.starter.showing = true // manual activation supersedes the active session
	g := d.gate(Config{DialogueID: "greet", Mode: Manual})

	if !g.Activate() {
		t.Fatal("manual activation did not fire")
	}
	// The fired latch does not gate manual activation.
	if !g.Activate() {
		t.Fatal("second manual activation did not fire")
	}

	// Content prerequisites still apply.
	gated := d.gate(Config{DialogueID: "ghost", Mode: Manual})
	if gated.Activate() {
		t.Fatal("manual activation fired for an unknown dialogue")
	}
}
