// Package locale provides the language selection layer consumed by the
// dialogue engine.
//
// The engine never performs localization lookups itself — authored dialogue
// lines carry their own per-language text. This package only answers "which
// language is the player using right now" and notifies subscribers when the
// selection changes. The active selection is persisted through the save-data
// key/value store so it survives restarts.
package locale

import (
	"context"
	"log/slog"
	"sync"

	"github.com/MrWong99/fabula/pkg/kv"
)

// Language is an ISO-639-1 style language code (e.g. "en", "es", "ca").
type Language string

const (
	// English is the engine's default and mandatory fallback language.
	English Language = "en"

	// Spanish and Catalan are the other languages the original title ships.
	Spanish Language = "es"
	Catalan Language = "ca"
)

// Provider exposes the current language selection and a change stream.
// The playback engine reads Current once per session start; mid-session
// changes take effect on the next session.
type Provider interface {
	// Current returns the active language.
	Current() Language

	// OnChange registers fn to be called whenever the selection changes.
	// The returned function removes the registration; callers must invoke
	// it when they no longer want notifications.
	OnChange(fn func(Language)) (unsubscribe func())
}

// Manager is the standard [Provider] implementation. It keeps the selection
// in memory and mirrors it to a [kv.Store] key so the choice survives
// restarts. All methods are safe for concurrent use.
type Manager struct {
	mu      sync.Mutex
	current Language
	subs    map[int]func(Language)
	nextID  int

	store kv.Store
	key   string
}

// ManagerConfig holds the dependencies for a [Manager].
type ManagerConfig struct {
	// Store persists the selection. May be nil; the selection is then
	// process-local.
	Store kv.Store

	// Key is the storage key for the selection. Default: "fabula.language".
	Key string

	// Default is the language used when no persisted selection exists.
	// Default: [English].
	Default Language
}

// NewManager creates a Manager and restores any persisted selection.
func NewManager(ctx context.Context, cfg ManagerConfig) *Manager {
	if cfg.Key == "" {
		cfg.Key = "fabula.language"
	}
	if cfg.Default == "" {
		cfg.Default = English
	}

	m := &Manager{
		current: cfg.Default,
		subs:    make(map[int]func(Language)),
		store:   cfg.Store,
		key:     cfg.Key,
	}

	if cfg.Store != nil {
		saved, err := cfg.Store.Get(ctx, cfg.Key)
		if err != nil {
			slog.Warn("locale: could not restore language selection", "err", err)
		} else if saved != "" {
			m.current = Language(saved)
		}
	}
	return m
}

// Current implements [Provider.Current].
func (m *Manager) Current() Language {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Set switches the active language, persists the choice, and notifies
// subscribers. Setting the already-active language is a no-op.
func (m *Manager) Set(ctx context.Context, lang Language) {
	m.mu.Lock()
	if m.current == lang {
		m.mu.Unlock()
		return
	}
	m.current = lang

	fns := make([]func(Language), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Set(ctx, m.key, string(lang)); err != nil {
			slog.Warn("locale: could not persist language selection", "lang", lang, "err", err)
		} else if err := m.store.Persist(ctx); err != nil {
			slog.Warn("locale: could not flush language selection", "lang", lang, "err", err)
		}
	}

	for _, fn := range fns {
		fn(lang)
	}
}

// OnChange implements [Provider.OnChange].
func (m *Manager) OnChange(fn func(Language)) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}
