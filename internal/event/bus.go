// Package event implements the notification registry the dialogue engine
// publishes lifecycle events through.
//
// Observers subscribe per event kind and receive callbacks in subscription
// order on the goroutine that publishes — for the engine, that is the
// cooperative tick. The engine publishes with no locks held, so handlers
// may call back into it; they should still be quick, since a slow handler
// stalls the tick that delivered it.
package event

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Kind identifies a notification type.
type Kind int

const (
	// DialogueStarted fires when a playback session begins, before the
	// initial delay.
	DialogueStarted Kind = iota

	// DialogueEnded fires when a session finishes all lines and cleanup.
	// Cancelled sessions do not fire it.
	DialogueEnded

	// LineShown fires exactly once per dialogue line, after the line's text
	// is fully revealed (or snapped by a skip).
	LineShown

	// PhaseCompleted fires on the transition of a phase from incomplete to
	// complete.
	PhaseCompleted

	// PhaseStarted fires when the sequencer advances into a new phase.
	PhaseStarted
)

// String returns the notification name used in logs and the event stream.
func (k Kind) String() string {
	switch k {
	case DialogueStarted:
		return "dialogue_started"
	case DialogueEnded:
		return "dialogue_ended"
	case LineShown:
		return "line_shown"
	case PhaseCompleted:
		return "phase_completed"
	case PhaseStarted:
		return "phase_started"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the kind as its string name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a kind from its string name.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "dialogue_started":
		*k = DialogueStarted
	case "dialogue_ended":
		*k = DialogueEnded
	case "line_shown":
		*k = LineShown
	case "phase_completed":
		*k = PhaseCompleted
	case "phase_started":
		*k = PhaseStarted
	default:
		return fmt.Errorf("event: unknown kind %q", s)
	}
	return nil
}

// Event is a published notification. Only the fields relevant to the kind
// are set: DialogueID for dialogue events, LineID for LineShown, Phase for
// phase events.
type Event struct {
	Kind       Kind   `json:"kind"`
	DialogueID string `json:"dialogue_id,omitempty"`
	LineID     string `json:"line_id,omitempty"`
	Phase      int    `json:"phase,omitempty"`
}

// Handle identifies a subscription for later removal.
type Handle struct {
	kind Kind
	id   int
}

// Bus is an ordered observer registry keyed by event kind.
// All methods are safe for concurrent use; Publish runs handlers
// synchronously in subscription order.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[Kind][]subscription
}

type subscription struct {
	id int
	fn func(Event)
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Kind][]subscription)}
}

// Subscribe registers fn for events of the given kind and returns a handle
// for [Bus.Unsubscribe]. Handlers for one kind run in subscription order.
func (b *Bus) Subscribe(kind Kind, fn func(Event)) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[Kind][]subscription)
	}
	b.nextID++
	b.subs[kind] = append(b.subs[kind], subscription{id: b.nextID, fn: fn})
	return Handle{kind: kind, id: b.nextID}
}

// SubscribeAll registers fn for every event kind and returns the handles.
func (b *Bus) SubscribeAll(fn func(Event)) []Handle {
	kinds := []Kind{DialogueStarted, DialogueEnded, LineShown, PhaseCompleted, PhaseStarted}
	handles := make([]Handle, 0, len(kinds))
	for _, k := range kinds {
		handles = append(handles, b.Subscribe(k, fn))
	}
	return handles
}

// Unsubscribe removes the subscription identified by h. Unknown or already
// removed handles are ignored.
func (b *Bus) Unsubscribe(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[h.kind]
	for i, s := range list {
		if s.id == h.id {
			b.subs[h.kind] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish delivers ev to every handler subscribed to ev.Kind, in
// subscription order, on the calling goroutine.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	list := b.subs[ev.Kind]
	fns := make([]func(Event), len(list))
	for i, s := range list {
		fns[i] = s.fn
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
