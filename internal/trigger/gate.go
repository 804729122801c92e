// Package trigger implements the world-side activation gate that decides
// whether a zone event or script call may start its dialogue.
//
// A Gate binds one dialogue id to an activation mode and runs a fixed
// sequence of short-circuit checks on every attempt. The check order is
// deliberate: the cheap local rejections (already fired, wrong activator)
// come before content lookup, prerequisites come before the engine-busy
// check, so a gate that fails a prerequisite never reports the engine as
// the reason.
package trigger

import (
	"log/slog"
	"sync"

	"github.com/MrWong99/fabula/internal/phase"
	"github.com/MrWong99/fabula/internal/script"
	"github.com/MrWong99/fabula/internal/seen"
	"github.com/MrWong99/fabula/pkg/stage"
)

// Mode selects which world event activates a gate.
type Mode int

const (
	// OnEnter fires when the activator enters the zone.
	OnEnter Mode = iota

	// OnStay fires while the activator remains in the zone. The fired
	// latch keeps a non-repeatable stay gate from re-triggering every
	// frame; a repeatable one is throttled by the engine-busy check.
	OnStay

	// OnExit fires when the activator leaves the zone.
	OnExit

	// Manual fires only through [Gate.Activate], for script-driven
	// dialogue starts. Manual activation skips the fired latch, the
	// activator-tag check, and the engine-busy check.
	Manual
)

// String returns the mode's configuration name.
func (m Mode) String() string {
	switch m {
	case OnEnter:
		return "on_enter"
	case OnStay:
		return "on_stay"
	case OnExit:
		return "on_exit"
	case Manual:
		return "manual"
	default:
		return "unknown"
	}
}

// DefaultTag is the activator tag a gate expects when none is configured.
const DefaultTag = "Player"

// Starter is the playback surface a gate hands a passing dialogue to.
// *playback.Engine satisfies it.
type Starter interface {
	Play(d *script.Dialogue) bool
	IsShowing() bool
}

// Config holds the construction parameters for a [Gate].
type Config struct {
	// DialogueID is the dialogue this gate starts. Required.
	DialogueID string

	// Mode selects the activating event. Default: [OnEnter].
	Mode Mode

	// Tag is the activator tag the zone events must carry. Default:
	// [DefaultTag]. Ignored for [Manual] gates.
	Tag string

	// Repeatable leaves the gate armed after it fires, so ambient
	// dialogues can replay on every activation. When false the gate
	// disarms after its first fire until [Gate.Reset].
	Repeatable bool

	// RequiredPhase gates activation on story progress: the gate fires
	// only while the sequencer can access this phase. It is independent
	// of the dialogue's own phase association. Negative disables the
	// check; the zero value names phase 0, which is always accessible.
	RequiredPhase int

	// Library resolves the dialogue id to content. Required.
	Library *script.Library

	// Seen answers seen-dialogue prerequisites. Required.
	Seen *seen.Store

	// Phases answers phase-accessibility checks. May be nil; the phase
	// check then passes.
	Phases *phase.Sequencer

	// Tasks answers mission prerequisites. May be nil; dialogues that
	// require tasks are then rejected.
	Tasks stage.TaskSource

	// Inventory answers item prerequisites. May be nil; dialogues that
	// require items are then rejected.
	Inventory stage.Inventory

	// Engine receives the dialogue when every check passes. Required.
	Engine Starter
}

// Gate is a single dialogue activation point. All methods are safe for
// concurrent use.
type Gate struct {
	mu    sync.Mutex
	fired bool

	cfg Config
}

// New creates a Gate.
func New(cfg Config) *Gate {
	if cfg.Tag == "" {
		cfg.Tag = DefaultTag
	}
	return &Gate{cfg: cfg}
}

// Enter reports a zone-enter event by an activator with the given tag.
// Returns true when the gate fired.
func (g *Gate) Enter(tag string) bool {
	if g.cfg.Mode != OnEnter {
		return false
	}
	return g.attempt(tag, false)
}

// Stay reports an ongoing zone-presence event.
func (g *Gate) Stay(tag string) bool {
	if g.cfg.Mode != OnStay {
		return false
	}
	return g.attempt(tag, false)
}

// Exit reports a zone-exit event.
func (g *Gate) Exit(tag string) bool {
	if g.cfg.Mode != OnExit {
		return false
	}
	return g.attempt(tag, false)
}

// Activate fires the gate from script code, bypassing the fired latch,
// the tag check, and the engine-busy check. Content prerequisites still
// apply. Works for every mode.
func (g *Gate) Activate() bool {
	return g.attempt("", true)
}

// HasFired reports whether the gate has fired since construction or the
// last [Gate.Reset].
func (g *Gate) HasFired() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fired
}

// Reset clears the fired latch so the gate can fire again.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.fired = false
	g.mu.Unlock()
}

// attempt runs the check sequence and starts the dialogue when every
// check passes. The checks run in a fixed order; the first failure wins
// and is logged at debug level with its reason.
func (g *Gate) attempt(tag string, manual bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !manual {
		if g.fired && !g.cfg.Repeatable {
			return false
		}
		if tag != g.cfg.Tag {
			slog.Debug("trigger: activator tag mismatch", "dialogue", g.cfg.DialogueID, "tag", tag, "want", g.cfg.Tag)
			return false
		}
	}

	d, err := g.cfg.Library.Dialogue(g.cfg.DialogueID)
	if err != nil {
		slog.Error("trigger: dialogue lookup failed", "dialogue", g.cfg.DialogueID, "error", err)
		return false
	}

	if g.cfg.RequiredPhase >= 0 && g.cfg.Phases != nil && !g.cfg.Phases.CanAccessPhase(g.cfg.RequiredPhase) {
		slog.Debug("trigger: required phase not yet accessible", "dialogue", d.ID, "phase", g.cfg.RequiredPhase)
		return false
	}

	if d.OneShot && g.cfg.Seen.HasSeen(d.ID) {
		slog.Debug("trigger: one-shot dialogue already seen", "dialogue", d.ID)
		return false
	}
	if !g.cfg.Seen.HasSeenAll(d.RequiredDialogues) {
		slog.Debug("trigger: required dialogues not all seen", "dialogue", d.ID, "required", d.RequiredDialogues)
		return false
	}

	if !g.tasksCompleted(d) {
		return false
	}
	if !g.itemsHeld(d) {
		return false
	}

	if !manual && g.cfg.Engine.IsShowing() {
		slog.Debug("trigger: another dialogue is showing", "dialogue", d.ID)
		return false
	}

	g.fired = true
	slog.Info("trigger: fired", "dialogue", d.ID, "mode", g.cfg.Mode, "manual", manual)
	g.cfg.Engine.Play(d)
	return true
}

// tasksCompleted checks the dialogue's mission prerequisites. A dialogue
// that requires tasks fails closed when no task source is wired.
func (g *Gate) tasksCompleted(d *script.Dialogue) bool {
	if len(d.RequiredTasks) == 0 {
		return true
	}
	if g.cfg.Tasks == nil {
		slog.Warn("trigger: dialogue requires tasks but no task source is configured", "dialogue", d.ID)
		return false
	}
	for _, id := range d.RequiredTasks {
		if !g.cfg.Tasks.IsCompleted(id) {
			slog.Debug("trigger: required task incomplete", "dialogue", d.ID, "task", id)
			return false
		}
	}
	return true
}

// itemsHeld checks the dialogue's inventory prerequisites, failing closed
// without an inventory source.
func (g *Gate) itemsHeld(d *script.Dialogue) bool {
	if len(d.RequiredItems) == 0 {
		return true
	}
	if g.cfg.Inventory == nil {
		slog.Warn("trigger: dialogue requires items but no inventory is configured", "dialogue", d.ID)
		return false
	}
	for _, id := range d.RequiredItems {
		if !g.cfg.Inventory.HasItem(id) {
			slog.Debug("trigger: required item missing", "dialogue", d.ID, "item", id)
			return false
		}
	}
	return true
}
