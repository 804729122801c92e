package stage

import (
	"fmt"
	"io"
	"sync"
)

// Compile-time interface checks.
var (
	_ Panel = (*TermPanel)(nil)
	_ Voice = (*SilentVoice)(nil)
)

// TermPanel renders dialogue to an [io.Writer] as plain text. It exists for
// the `fabula preview` command and for any headless harness that wants to
// watch a dialogue play out. Safe for concurrent use.
//
// The typewriter reveal is rendered with a carriage return so the line
// redraws in place on a terminal.
type TermPanel struct {
	mu      sync.Mutex
	w       io.Writer
	speaker string
	visible bool
}

// NewTermPanel returns a TermPanel writing to w.
func NewTermPanel(w io.Writer) *TermPanel {
	return &TermPanel{w: w}
}

// SetSpeaker implements [Panel.SetSpeaker].
func (p *TermPanel) SetSpeaker(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speaker = name
}

// SetMessage implements [Panel.SetMessage].
func (p *TermPanel) SetMessage(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible {
		return
	}
	if text == "" {
		fmt.Fprint(p.w, "\r\n")
		return
	}
	fmt.Fprintf(p.w, "\r%s: %s", p.speaker, text)
}

// Show implements [Panel.Show].
func (p *TermPanel) Show() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible = true
}

// Hide implements [Panel.Hide].
func (p *TermPanel) Hide() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.visible {
		fmt.Fprintln(p.w)
	}
	p.visible = false
}

// SilentVoice is a [Voice] that plays nothing. Preview sessions use it so
// lines with audio cues fall through to their display-duration wait instead
// of blocking on audio that cannot be heard.
type SilentVoice struct{}

// Play implements [Voice.Play].
func (SilentVoice) Play(string) {}

// Stop implements [Voice.Stop].
func (SilentVoice) Stop() {}

// IsPlaying implements [Voice.IsPlaying]. It always reports false.
func (SilentVoice) IsPlaying() bool { return false }
