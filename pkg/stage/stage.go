// Package stage declares the collaborator contracts the dialogue engine
// consumes from the host game: the subtitle panel, the voice-clip player,
// the player-control lock, and the mission/inventory queries used by
// trigger prerequisites.
//
// These are capability contracts, not concrete APIs — the host wires in
// whatever rendering, audio, and gameplay systems it has. Every contract is
// optional at the call sites that document it as such; the engine treats an
// absent collaborator as a no-op, never as an error.
package stage

// Panel is the presentation surface dialogue text is written to. The engine
// treats it as a stateless sink: it pushes full speaker/message strings on
// every change and shows or hides the surface around a session.
type Panel interface {
	// SetSpeaker replaces the speaker label.
	SetSpeaker(name string)

	// SetMessage replaces the message text. During the typewriter reveal this
	// is called once per revealed character with the visible prefix.
	SetMessage(text string)

	// Show makes the panel visible.
	Show()

	// Hide hides the panel. The engine clears both texts before hiding.
	Hide()
}

// Voice plays a line's audio cue. Clips are identified by the authored cue
// reference carried on the dialogue line; resolution to an actual asset is
// the host's concern.
type Voice interface {
	// Play starts the given clip, replacing any clip already playing.
	Play(clip string)

	// Stop stops playback immediately. Safe to call when nothing is playing.
	Stop()

	// IsPlaying reports whether a clip is currently playing.
	IsPlaying() bool
}

// Controls suspends and restores player input while a dialogue that pauses
// movement is on screen.
type Controls interface {
	// Suspend disables player movement and rotation.
	Suspend()

	// Restore re-enables player movement and rotation.
	Restore()
}

// TaskSource answers mission-completion queries for trigger prerequisites.
type TaskSource interface {
	// IsCompleted reports whether the task with the given id is done.
	IsCompleted(id string) bool
}

// Inventory answers item-possession queries for trigger prerequisites.
type Inventory interface {
	// HasItem reports whether the player currently holds the item.
	HasItem(id string) bool
}
