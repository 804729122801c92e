// Package playback implements the dialogue playback engine: a cooperative,
// tick-driven state machine that plays one dialogue's lines over time.
//
// The engine owns no goroutines and never sleeps. The host drives it by
// calling [Engine.Tick] with the current time — from a frame loop, a
// time.Ticker, or a synthetic clock in tests — and the active session
// advances as far as that instant allows before yielding. All suspension
// points (initial delay, per-character reveal, audio wait, display hold,
// auto-advance) are expressed as deadlines or predicates checked on the
// next tick, and cancellation is a synchronous teardown that can land
// between any two yield points without corrupting shared state: the
// seen-mark and phase completion only happen after the full line loop has
// run, so a cancelled session leaves no partial persistence behind.
//
// At most one session is active per engine (single-flight). Starting a new
// dialogue while one is playing cancels the old session unconditionally.
package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/fabula/internal/event"
	"github.com/MrWong99/fabula/internal/observe"
	"github.com/MrWong99/fabula/internal/phase"
	"github.com/MrWong99/fabula/internal/script"
	"github.com/MrWong99/fabula/internal/seen"
	"github.com/MrWong99/fabula/pkg/locale"
	"github.com/MrWong99/fabula/pkg/stage"
)

const (
	// defaultLetterTime is the typewriter delay used when neither the line
	// nor the engine config specifies one.
	defaultLetterTime = 50 * time.Millisecond

	// audioSettleDelay is the fixed pause after an audio cue finishes,
	// before the auto-advance wait begins.
	audioSettleDelay = 500 * time.Millisecond

	// autoAdvanceTimeout bounds the post-line wait for player input. The
	// session progresses after this much silence, so a line can never
	// stall the story.
	autoAdvanceTimeout = 500 * time.Millisecond
)

// Config holds the dependencies and tunables for an [Engine].
type Config struct {
	// Panel is the presentation surface. Required.
	Panel stage.Panel

	// Voice plays line audio cues. May be nil; lines with cues then fall
	// through to their display-duration wait.
	Voice stage.Voice

	// Controls suspends player input for dialogues that request it.
	// May be nil; suspension is then skipped.
	Controls stage.Controls

	// Seen records watched dialogues. Required.
	Seen *seen.Store

	// Phases is the story sequencer, consulted when a phase-associated
	// dialogue completes. May be nil.
	Phases *phase.Sequencer

	// Languages supplies the session language. May be nil; sessions then
	// render the fallback language.
	Languages locale.Provider

	// FallbackLanguage is used when a line lacks the session language.
	// Default: [locale.English].
	FallbackLanguage locale.Language

	// Bus receives dialogue-started, line-shown, and dialogue-ended
	// notifications. May be nil.
	Bus *event.Bus

	// Metrics records playback instrumentation. May be nil.
	Metrics *observe.Metrics

	// DefaultLetterTime is the typewriter delay for lines that do not set
	// their own. Default 50ms.
	DefaultLetterTime time.Duration

	// AllowSkip enables the skip signal. When false, Skip calls are
	// ignored and every reveal runs at full length.
	AllowSkip bool
}

// sessionState enumerates the yield points of the line sub-protocol.
type sessionState int

const (
	stateInitialDelay sessionState = iota
	stateReveal
	stateAudioWait
	stateAudioSettle
	stateDisplayHold
	stateAutoAdvance
)

// session is the transient state of one dialogue playback.
type session struct {
	dialogue *script.Dialogue
	lang     locale.Language

	state   sessionState
	lineIdx int

	// Per-line reveal state.
	message    []rune
	speaker    string
	revealed   int
	nextCharAt time.Time
	skipped    bool
	audioLive  bool

	// Deadline for the timed states.
	waitUntil time.Time

	startedAt time.Time
	suspended bool
}

// Engine plays dialogues. All exported methods are safe for concurrent
// use, though state only changes on [Engine.Tick] and on the explicit
// Play/Stop calls.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	active *session

	pendingSkip    bool
	pendingAdvance bool
}

// New creates an Engine. Panel and Seen must be non-nil.
func New(cfg Config) *Engine {
	if cfg.DefaultLetterTime <= 0 {
		cfg.DefaultLetterTime = defaultLetterTime
	}
	if cfg.FallbackLanguage == "" {
		cfg.FallbackLanguage = locale.English
	}
	return &Engine{cfg: cfg}
}

// Play starts a new playback session for d and reports whether a session
// began.
//
// Rejected without any state change when d is nil or has no lines
// (content errors, logged), or when d is one-shot and already seen. Any
// session already active is cancelled first — it is abandoned mid-line
// with UI and controls restored and nothing marked seen.
//
// The session begins suspended; the first [Engine.Tick] starts the
// initial delay.
func (e *Engine) Play(d *script.Dialogue) bool {
	if d == nil {
		slog.Error("playback: nil dialogue")
		return false
	}
	if !d.HasLines() {
		slog.Warn("playback: dialogue has no lines", "dialogue", d.ID)
		return false
	}
	if d.OneShot && e.cfg.Seen.HasSeen(d.ID) {
		slog.Debug("playback: one-shot dialogue already seen", "dialogue", d.ID)
		return false
	}

	e.mu.Lock()
	if e.active != nil {
		e.cancelLocked("superseded")
	}

	lang := e.cfg.FallbackLanguage
	if e.cfg.Languages != nil {
		lang = e.cfg.Languages.Current()
	}

	e.active = &session{dialogue: d, lang: lang, state: stateInitialDelay}
	e.pendingSkip = false
	e.pendingAdvance = false

	if d.PausePlayerMovement && e.cfg.Controls != nil {
		e.cfg.Controls.Suspend()
		e.active.suspended = true
	}
	e.mu.Unlock()

	slog.Info("playback: dialogue started", "dialogue", d.ID, "lines", len(d.Lines), "lang", lang)
	e.count(e.metrics().SessionsStarted, attribute.String("dialogue", d.ID))
	e.gauge(e.metrics().ActiveSessions, 1)
	e.publish(event.Event{Kind: event.DialogueStarted, DialogueID: d.ID})
	return true
}

// Stop cancels the active session synchronously: audio stops, the panel
// hides, player control is restored, and no seen-mark or phase completion
// is applied. Safe to call when no session is active.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return
	}
	e.cancelLocked("stopped")
}

// IsShowing reports whether a session is active — true from
// dialogue-started until dialogue-ended or cancellation.
func (e *Engine) IsShowing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

// Skip requests that the current line's reveal snap to fully shown. The
// signal is consumed at the next reveal yield point; outside a reveal it
// is dropped. Ignored when the engine is configured without skip support.
func (e *Engine) Skip() {
	if !e.cfg.AllowSkip {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil && e.active.state == stateReveal {
		e.pendingSkip = true
	}
}

// Advance reports player input to the auto-advance wait, ending it early.
// Input outside that wait is dropped, so mashing a key during the reveal
// does not queue up phantom advances.
func (e *Engine) Advance() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil && e.active.state == stateAutoAdvance {
		e.pendingAdvance = true
	}
}

// Tick advances the active session as far as now allows. It is the
// engine's only clock source; the host calls it from its frame loop.
// A tick with no active session is a no-op.
func (e *Engine) Tick(now time.Time) {
	var events []event.Event
	e.mu.Lock()
	finished := e.tickLocked(now, &events)
	e.mu.Unlock()

	// Notifications fire outside the lock so handlers may call back into
	// the engine.
	for _, ev := range events {
		e.publish(ev)
	}
	if finished != nil {
		e.finishSession(finished, now)
	}
}

// tickLocked runs the session state machine, appending notifications to
// events for the caller to publish after unlocking. It returns the session
// when it just ran its last line to completion; the caller performs the
// post-session bookkeeping outside the lock. Caller holds e.mu.
func (e *Engine) tickLocked(now time.Time, events *[]event.Event) *session {
	s := e.active
	if s == nil {
		return nil
	}

	for {
		switch s.state {
		case stateInitialDelay:
			if s.startedAt.IsZero() {
				s.startedAt = now
				s.waitUntil = now.Add(s.dialogue.InitialDelayDuration())
			}
			if now.Before(s.waitUntil) {
				return nil
			}
			e.cfg.Panel.Show()
			e.beginLine(s, now)

		case stateReveal:
			if !e.revealLocked(s, now) {
				return nil
			}
			// Reveal finished (or skipped): the line-shown notification is
			// emitted exactly once per line, skip or not.
			line := &s.dialogue.Lines[s.lineIdx]
			slog.Debug("playback: line shown", "dialogue", s.dialogue.ID, "line", line.ID, "skipped", s.skipped)
			e.count(e.metrics().LinesShown)
			*events = append(*events, event.Event{Kind: event.LineShown, DialogueID: s.dialogue.ID, LineID: line.ID})

			if s.audioLive && e.cfg.Voice != nil && e.cfg.Voice.IsPlaying() {
				s.state = stateAudioWait
			} else {
				s.state = stateDisplayHold
				s.waitUntil = now.Add(line.DisplayDuration())
			}

		case stateAudioWait:
			if e.cfg.Voice != nil && e.cfg.Voice.IsPlaying() {
				return nil
			}
			s.state = stateAudioSettle
			s.waitUntil = now.Add(audioSettleDelay)

		case stateAudioSettle, stateDisplayHold:
			if now.Before(s.waitUntil) {
				return nil
			}
			s.state = stateAutoAdvance
			s.waitUntil = now.Add(autoAdvanceTimeout)
			e.pendingAdvance = false

		case stateAutoAdvance:
			if !e.pendingAdvance && now.Before(s.waitUntil) {
				return nil
			}
			if e.pendingAdvance {
				slog.Debug("playback: line advanced by input", "dialogue", s.dialogue.ID)
			}
			e.pendingAdvance = false

			s.lineIdx++
			if s.lineIdx < len(s.dialogue.Lines) {
				e.beginLine(s, now)
				continue
			}

			// All lines played: detach the session and let the caller run
			// the persistence steps, teardown, and notifications. Teardown
			// waits until after the seen-mark and phase completion.
			e.active = nil
			return s
		}
	}
}

// beginLine resolves the current line's text for the session language,
// resets the reveal, and starts the audio cue if one is authored.
func (e *Engine) beginLine(s *session, now time.Time) {
	line := &s.dialogue.Lines[s.lineIdx]

	s.speaker = line.Speaker.Resolve(s.lang, e.cfg.FallbackLanguage)
	s.message = []rune(line.Message.Resolve(s.lang, e.cfg.FallbackLanguage))
	s.revealed = 0
	s.skipped = false
	s.nextCharAt = now
	s.state = stateReveal
	e.pendingSkip = false

	e.cfg.Panel.SetSpeaker(s.speaker)
	e.cfg.Panel.SetMessage("")

	s.audioLive = false
	if line.HasAudio() && e.cfg.Voice != nil {
		e.cfg.Voice.Play(line.AudioCue)
		s.audioLive = true
	}
}

// revealLocked advances the typewriter reveal and reports whether the line
// is fully visible. A pending skip snaps the remaining text in one step
// and cuts any in-flight audio.
func (e *Engine) revealLocked(s *session, now time.Time) bool {
	line := &s.dialogue.Lines[s.lineIdx]
	delay := line.LetterDelay(e.cfg.DefaultLetterTime)

	for s.revealed < len(s.message) {
		if e.pendingSkip {
			e.pendingSkip = false
			s.revealed = len(s.message)
			s.skipped = true
			e.cfg.Panel.SetMessage(string(s.message))
			if s.audioLive && e.cfg.Voice != nil && e.cfg.Voice.IsPlaying() {
				e.cfg.Voice.Stop()
			}
			s.audioLive = false
			e.count(e.metrics().Skips)
			return true
		}
		if now.Before(s.nextCharAt) {
			return false
		}
		s.revealed++
		s.nextCharAt = s.nextCharAt.Add(delay)
		e.cfg.Panel.SetMessage(string(s.message[:s.revealed]))
	}
	return true
}

// finishSession runs the post-session steps outside the engine lock:
// seen-mark, conditional phase completion, teardown, and the ended
// notification, in that order. Observers of dialogue-ended may
// immediately query the seen store and the sequencer.
func (e *Engine) finishSession(s *session, now time.Time) {
	d := s.dialogue
	e.cfg.Seen.MarkSeen(d.ID)

	if d.Phase >= 0 && e.cfg.Phases != nil {
		current := e.cfg.Phases.CurrentPhase()
		if d.Phase == current {
			e.cfg.Phases.CompletePhase(d.Phase)
			e.count(e.metrics().PhasesCompleted)
		} else {
			// A dialogue from an earlier phase replayed later must not
			// regress or double-credit the sequencer.
			slog.Debug("playback: dialogue phase is not current, not completing",
				"dialogue", d.ID, "phase", d.Phase, "current", current)
		}
	}

	// A Play racing in since the last tick owns the surface now; leave
	// the panel and controls to it.
	e.mu.Lock()
	if e.active == nil {
		e.teardownLocked(s)
	}
	e.mu.Unlock()

	slog.Info("playback: dialogue ended", "dialogue", d.ID, "duration", now.Sub(s.startedAt))
	e.gauge(e.metrics().ActiveSessions, -1)
	e.count(e.metrics().SessionsCompleted, attribute.String("dialogue", d.ID))
	e.recordDuration(d, now.Sub(s.startedAt))
	e.publish(event.Event{Kind: event.DialogueEnded, DialogueID: d.ID})
}

// cancelLocked abandons the active session mid-flight: audio stops, the
// panel hides, controls restore, and no persistence happens. Caller holds
// e.mu.
func (e *Engine) cancelLocked(reason string) {
	s := e.active
	slog.Info("playback: session cancelled", "dialogue", s.dialogue.ID, "reason", reason)
	if s.audioLive && e.cfg.Voice != nil {
		e.cfg.Voice.Stop()
	}
	e.teardownLocked(s)
	e.active = nil
	e.pendingSkip = false
	e.pendingAdvance = false
	e.gauge(e.metrics().ActiveSessions, -1)
	e.count(e.metrics().SessionsCancelled)
}

// teardownLocked clears the presentation surface and restores player
// control. Caller holds e.mu.
func (e *Engine) teardownLocked(s *session) {
	e.cfg.Panel.SetSpeaker("")
	e.cfg.Panel.SetMessage("")
	e.cfg.Panel.Hide()
	if s.suspended && e.cfg.Controls != nil {
		e.cfg.Controls.Restore()
	}
}

// publish sends ev on the bus, if one is configured.
func (e *Engine) publish(ev event.Event) {
	if e.cfg.Bus != nil {
		e.cfg.Bus.Publish(ev)
	}
}

// metrics returns the configured instruments, or nil.
func (e *Engine) metrics() *observe.Metrics {
	return e.cfg.Metrics
}

// count adds 1 to c with the given attributes. Nil-safe.
func (e *Engine) count(c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if e.cfg.Metrics == nil || c == nil {
		return
	}
	c.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// gauge adds delta to g. Nil-safe.
func (e *Engine) gauge(g metric.Int64UpDownCounter, delta int64) {
	if e.cfg.Metrics == nil || g == nil {
		return
	}
	g.Add(context.Background(), delta)
}

// recordDuration records the session's wall time from first tick to
// completion. Nil-safe.
func (e *Engine) recordDuration(d *script.Dialogue, elapsed time.Duration) {
	m := e.cfg.Metrics
	if m == nil || m.SessionDuration == nil {
		return
	}
	m.SessionDuration.Record(context.Background(), elapsed.Seconds(),
		metric.WithAttributes(attribute.String("dialogue", d.ID)))
}
