// Package script holds the authored dialogue content model: dialogues,
// their lines, per-language text, and the script library loaded from YAML.
//
// Content is immutable once loaded. The playback engine and trigger gates
// borrow read-only references into the library; nothing in this package
// carries runtime state.
package script

import (
	"time"

	"github.com/MrWong99/fabula/pkg/locale"
)

// MissingTranslation is the sentinel shown when neither the requested
// language nor the fallback language has text for a line. A hole in the
// translations never aborts a session — the sentinel makes it obvious on
// screen and in captures.
const MissingTranslation = "[MISSING TRANSLATION]"

// PhaseNone marks a dialogue that is not associated with any story phase.
// Playing it never completes a phase.
const PhaseNone = -1

// Text is authored per-language text, keyed by language code.
type Text map[locale.Language]string

// Resolve returns the text for lang, falling back to fallback, and finally
// to [MissingTranslation] when neither is present.
func (t Text) Resolve(lang, fallback locale.Language) string {
	if s, ok := t[lang]; ok && s != "" {
		return s
	}
	if s, ok := t[fallback]; ok && s != "" {
		return s
	}
	return MissingTranslation
}

// Has reports whether t carries non-empty text for lang.
func (t Text) Has(lang locale.Language) bool {
	s, ok := t[lang]
	return ok && s != ""
}

// Line is a single authored dialogue line.
type Line struct {
	// ID uniquely identifies the line (e.g. "phase0_intro_line1"). It is
	// carried on the line-shown notification.
	ID string `yaml:"id"`

	// Speaker is the per-language speaker label.
	Speaker Text `yaml:"speaker"`

	// Message is the per-language line text.
	Message Text `yaml:"message"`

	// AudioCue references the voice clip for this line. Empty means the
	// line is text-only.
	AudioCue string `yaml:"audio_cue,omitempty"`

	// LetterTime is the typewriter delay per character, in seconds. Zero
	// falls back to the engine's configured default.
	LetterTime float64 `yaml:"letter_time,omitempty"`

	// DisplayTime is how long the fully revealed line stays on screen when
	// no audio cue is playing, in seconds.
	DisplayTime float64 `yaml:"display_time,omitempty"`
}

// LetterDelay returns the per-character reveal delay, using def when the
// line does not specify one.
func (l *Line) LetterDelay(def time.Duration) time.Duration {
	if l.LetterTime > 0 {
		return secondsToDuration(l.LetterTime)
	}
	return def
}

// DisplayDuration returns the post-reveal hold duration.
func (l *Line) DisplayDuration() time.Duration {
	return secondsToDuration(l.DisplayTime)
}

// HasAudio reports whether the line carries an audio cue.
func (l *Line) HasAudio() bool {
	return l.AudioCue != ""
}

// Dialogue is a complete authored conversation or monologue.
type Dialogue struct {
	// ID uniquely identifies the dialogue (e.g. "phase0_intro").
	ID string `yaml:"id"`

	// Phase is the story phase this dialogue belongs to, or [PhaseNone].
	// Completing the current phase's dialogue advances the sequencer.
	Phase int `yaml:"phase"`

	// RequiredDialogues lists dialogue ids that must have been seen before
	// a trigger carrying this dialogue fires.
	RequiredDialogues []string `yaml:"required_dialogues,omitempty"`

	// RequiredTasks lists mission/task ids that must be completed.
	RequiredTasks []string `yaml:"required_tasks,omitempty"`

	// RequiredItems lists inventory item ids the player must hold.
	RequiredItems []string `yaml:"required_items,omitempty"`

	// Lines are the ordered dialogue lines.
	Lines []Line `yaml:"lines"`

	// OneShot marks the dialogue as playable once per save lifetime.
	OneShot bool `yaml:"one_shot"`

	// PausePlayerMovement suspends player control for the session.
	PausePlayerMovement bool `yaml:"pause_player_movement"`

	// InitialDelay is the wait before the first line, in seconds. The panel
	// stays hidden and controls stay suspended during the delay.
	InitialDelay float64 `yaml:"initial_delay,omitempty"`
}

// HasLines reports whether the dialogue has at least one line.
func (d *Dialogue) HasLines() bool {
	return d != nil && len(d.Lines) > 0
}

// InitialDelayDuration returns the pre-first-line delay.
func (d *Dialogue) InitialDelayDuration() time.Duration {
	return secondsToDuration(d.InitialDelay)
}

// secondsToDuration converts authored fractional seconds to a Duration.
func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
