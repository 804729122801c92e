package script

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by [Library.Dialogue] when no dialogue with the
// requested id exists.
var ErrNotFound = errors.New("dialogue not found")

// File is the top-level structure of a Fabula script YAML file.
//
// Example:
//
//	story:
//	  title: "Case File NV-51"
//	  max_phase: 12
//	  phase_dialogues: [phase0_intro, phase1_gas, ...]
//	dialogues:
//	  - id: phase0_intro
//	    phase: 0
//	    one_shot: true
//	    lines:
//	      - id: phase0_intro_line1
//	        speaker: {en: "???"}
//	        message: {en: "Wake up."}
type File struct {
	Story     StoryMeta  `yaml:"story"`
	Dialogues []Dialogue `yaml:"dialogues"`
}

// StoryMeta holds top-level metadata for a script.
type StoryMeta struct {
	// Title is the story's display name.
	Title string `yaml:"title"`

	// MaxPhase is the highest phase index (phases run 0..MaxPhase).
	MaxPhase int `yaml:"max_phase"`

	// PhaseDialogues lists, in phase order, the id of each phase's main
	// dialogue. Must have MaxPhase+1 entries.
	PhaseDialogues []string `yaml:"phase_dialogues"`
}

// LoadFile reads and parses a script YAML file from disk.
func LoadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("script: open %q: %w", path, err)
	}
	defer f.Close()

	sf, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("script: parse %q: %w", path, err)
	}
	return sf, nil
}

// LoadFromReader parses script YAML from an [io.Reader].
// The reader is consumed entirely; the caller is responsible for closing it.
func LoadFromReader(r io.Reader) (*File, error) {
	var sf File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch authoring typos
	if err := dec.Decode(&sf); err != nil {
		return nil, fmt.Errorf("script: decode yaml: %w", err)
	}
	return &sf, nil
}

// Library is the loaded, indexed dialogue content. It is read-only after
// construction and safe for concurrent use.
type Library struct {
	meta      StoryMeta
	order     []string
	dialogues map[string]*Dialogue
}

// NewLibrary indexes a parsed script file. Duplicate dialogue ids are
// rejected; deeper content checks live in [Validate].
func NewLibrary(sf *File) (*Library, error) {
	if sf == nil {
		return nil, fmt.Errorf("script: file must not be nil")
	}

	lib := &Library{
		meta:      sf.Story,
		dialogues: make(map[string]*Dialogue, len(sf.Dialogues)),
	}
	for i := range sf.Dialogues {
		d := &sf.Dialogues[i]
		if d.ID == "" {
			return nil, fmt.Errorf("script: dialogue at index %d has no id", i)
		}
		if _, exists := lib.dialogues[d.ID]; exists {
			return nil, fmt.Errorf("script: duplicate dialogue id %q", d.ID)
		}
		lib.dialogues[d.ID] = d
		lib.order = append(lib.order, d.ID)
	}
	return lib, nil
}

// Meta returns the story metadata.
func (l *Library) Meta() StoryMeta {
	return l.meta
}

// Dialogue returns the dialogue with the given id.
// Returns [ErrNotFound] when no such dialogue exists.
func (l *Library) Dialogue(id string) (*Dialogue, error) {
	d, ok := l.dialogues[id]
	if !ok {
		return nil, fmt.Errorf("script: dialogue %q: %w", id, ErrNotFound)
	}
	return d, nil
}

// IDs returns all dialogue ids in authored order.
func (l *Library) IDs() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Len returns the number of dialogues in the library.
func (l *Library) Len() int {
	return len(l.order)
}

// PhaseDialogues resolves the per-phase main dialogue table declared in the
// story metadata. The returned slice is indexed by phase (0..MaxPhase);
// entries that do not resolve are nil and reported in the error.
func (l *Library) PhaseDialogues() ([]*Dialogue, error) {
	want := l.meta.MaxPhase + 1
	if len(l.meta.PhaseDialogues) != want {
		return nil, fmt.Errorf("script: phase_dialogues has %d entries, want %d (phases 0..%d)",
			len(l.meta.PhaseDialogues), want, l.meta.MaxPhase)
	}

	table := make([]*Dialogue, want)
	var errs []error
	for phase, id := range l.meta.PhaseDialogues {
		d, err := l.Dialogue(id)
		if err != nil {
			errs = append(errs, fmt.Errorf("phase %d: %w", phase, err))
			continue
		}
		table[phase] = d
	}
	return table, errors.Join(errs...)
}
