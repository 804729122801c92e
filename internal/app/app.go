// Package app wires all Fabula subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the tick loop and the HTTP server, and
// Shutdown tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithPanel, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/fabula/internal/config"
	"github.com/MrWong99/fabula/internal/event"
	"github.com/MrWong99/fabula/internal/eventstream"
	"github.com/MrWong99/fabula/internal/observe"
	"github.com/MrWong99/fabula/internal/phase"
	"github.com/MrWong99/fabula/internal/playback"
	"github.com/MrWong99/fabula/internal/script"
	"github.com/MrWong99/fabula/internal/seen"
	"github.com/MrWong99/fabula/pkg/kv"
	"github.com/MrWong99/fabula/pkg/locale"
	"github.com/MrWong99/fabula/pkg/stage"
)

// shutdownTimeout bounds the HTTP server drain during Run teardown.
const shutdownTimeout = 5 * time.Second

// App owns all subsystem lifetimes and orchestrates the dialogue engine.
type App struct {
	cfg *config.Config

	// Subsystems — initialised in New, torn down in Shutdown.
	store     kv.Store
	languages *locale.Manager
	library   *script.Library
	seen      *seen.Store
	phases    *phase.Sequencer
	bus       *event.Bus
	engine    *playback.Engine
	metrics   *observe.Metrics
	stream    *eventstream.Server

	// Host collaborators — injectable, with terminal defaults.
	panel     stage.Panel
	voice     stage.Voice
	controls  stage.Controls
	tasks     stage.TaskSource
	inventory stage.Inventory

	// meterProvider, when injected, replaces the Prometheus bootstrap.
	meterProvider metric.MeterProvider

	// closers are called in order during Shutdown.
	closers []func(context.Context) error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles
// or the host game's real collaborators.
type Option func(*App)

// WithStore injects a save-data store instead of creating one from config.
func WithStore(s kv.Store) Option {
	return func(a *App) { a.store = s }
}

// WithPanel injects the presentation surface. Default: a terminal panel
// on stdout.
func WithPanel(p stage.Panel) Option {
	return func(a *App) { a.panel = p }
}

// WithVoice injects the audio surface. Default: a silent voice.
func WithVoice(v stage.Voice) Option {
	return func(a *App) { a.voice = v }
}

// WithControls injects the player-control lock. Default: none.
func WithControls(c stage.Controls) Option {
	return func(a *App) { a.controls = c }
}

// WithTaskSource injects the mission-completion source used by trigger
// prerequisites. Default: none.
func WithTaskSource(s stage.TaskSource) Option {
	return func(a *App) { a.tasks = s }
}

// WithInventory injects the item source used by trigger prerequisites.
// Default: none.
func WithInventory(inv stage.Inventory) Option {
	return func(a *App) { a.inventory = inv }
}

// WithMeterProvider injects a meter provider instead of bootstrapping the
// process-global Prometheus exporter. The exporter registers itself with
// the default Prometheus registry, which only works once per process, so
// tests and embedding hosts supply their own provider here.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(a *App) { a.meterProvider = mp }
}

// New creates an App by wiring all subsystems together. Use Option
// functions to inject test doubles or host collaborators.
//
// New performs all initialisation synchronously: storage connection,
// language restore, script loading and validation, checkpoint restore,
// metrics bootstrap, and engine construction.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg: cfg,
		bus: event.NewBus(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.panel == nil {
		a.panel = stage.NewTermPanel(os.Stdout)
	}
	if a.voice == nil {
		a.voice = stage.SilentVoice{}
	}

	if err := a.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}
	if err := a.initScript(); err != nil {
		return nil, fmt.Errorf("app: init script: %w", err)
	}
	if err := a.initState(ctx); err != nil {
		return nil, fmt.Errorf("app: init state: %w", err)
	}
	if err := a.initObservability(ctx); err != nil {
		return nil, fmt.Errorf("app: init observability: %w", err)
	}

	a.engine = playback.New(playback.Config{
		Panel:             a.panel,
		Voice:             a.voice,
		Controls:          a.controls,
		Seen:              a.seen,
		Phases:            a.phases,
		Languages:         a.languages,
		FallbackLanguage:  cfg.Engine.FallbackLanguage,
		Bus:               a.bus,
		Metrics:           a.metrics,
		DefaultLetterTime: cfg.Engine.DefaultLetterDuration(),
		AllowSkip:         cfg.Engine.AllowSkip,
	})

	a.stream = eventstream.NewServer(a.bus)
	a.closers = append(a.closers, func(context.Context) error {
		a.stream.Close()
		return nil
	})

	return a, nil
}

// initStorage sets up the save-data store selected by the config.
func (a *App) initStorage(ctx context.Context) error {
	if a.store != nil {
		return nil // injected
	}

	switch a.cfg.Storage.Backend {
	case config.BackendFile:
		a.store = kv.NewFileStore(a.cfg.Storage.File.Path)
		slog.Info("save data on local file", "path", a.cfg.Storage.File.Path)

	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, a.cfg.Storage.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		store := kv.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return err
		}
		a.store = store
		a.closers = append(a.closers, func(context.Context) error {
			pool.Close()
			return nil
		})
		slog.Info("save data on postgres")

	default:
		a.store = kv.NewMemStore()
		slog.Info("save data in memory only")
	}
	return nil
}

// initScript loads the authored script file and refuses to start on
// validation errors. Warnings are logged and tolerated.
func (a *App) initScript() error {
	sf, err := script.LoadFile(a.cfg.Story.ScriptPath)
	if err != nil {
		return err
	}
	lib, err := script.NewLibrary(sf)
	if err != nil {
		return err
	}

	fallback := a.cfg.Engine.FallbackLanguage
	if fallback == "" {
		fallback = locale.English
	}
	hardErrors := 0
	for _, issue := range script.Validate(lib, string(fallback)) {
		if issue.Severity == "error" {
			hardErrors++
			slog.Error("script validation", "dialogue", issue.DialogueID, "issue", issue.Message)
		} else {
			slog.Warn("script validation", "dialogue", issue.DialogueID, "issue", issue.Message)
		}
	}
	if hardErrors > 0 {
		return fmt.Errorf("script %q has %d validation errors", a.cfg.Story.ScriptPath, hardErrors)
	}

	a.library = lib
	slog.Info("script loaded", "path", a.cfg.Story.ScriptPath, "title", lib.Meta().Title, "dialogues", lib.Len())
	return nil
}

// initState builds the language manager, seen store, and phase sequencer,
// restoring any persisted save data.
func (a *App) initState(ctx context.Context) error {
	a.languages = locale.NewManager(ctx, locale.ManagerConfig{
		Store:   a.store,
		Default: a.cfg.Engine.DefaultLanguage,
	})

	a.seen = seen.New(seen.Config{KV: a.store})
	found, err := a.seen.LoadCheckpoint(ctx)
	if err != nil {
		return err
	}
	if found {
		slog.Info("restored checkpoint", "checkpoint", a.seen.Checkpoint(), "seen", a.seen.Count())
	}

	phaseCfg := phase.Config{Bus: a.bus}
	meta := a.library.Meta()
	if meta.MaxPhase > 0 {
		phaseCfg.Max = meta.MaxPhase
	}
	if len(meta.PhaseDialogues) > 0 {
		table, err := a.library.PhaseDialogues()
		if err != nil {
			return err
		}
		phaseCfg.Dialogues = table
	}
	a.phases = phase.New(phaseCfg)
	return nil
}

// initObservability bootstraps the metrics provider and instruments.
func (a *App) initObservability(ctx context.Context) error {
	if a.meterProvider == nil {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, shutdown)
		a.meterProvider = otel.GetMeterProvider()
	}

	m, err := observe.NewMetrics(a.meterProvider)
	if err != nil {
		return err
	}
	a.metrics = m
	return nil
}

// Engine returns the playback engine, for hosts embedding the app.
func (a *App) Engine() *playback.Engine { return a.engine }

// Library returns the loaded script library.
func (a *App) Library() *script.Library { return a.library }

// Bus returns the notification bus.
func (a *App) Bus() *event.Bus { return a.bus }

// Run starts the tick loop and the HTTP server, blocking until ctx is
// cancelled or a subsystem fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// Tick loop: the engine's only clock.
	g.Go(func() error {
		interval := a.cfg.Engine.TickIntervalDuration()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		slog.Info("tick loop running", "interval", interval)
		for {
			select {
			case <-ctx.Done():
				a.engine.Stop()
				return ctx.Err()
			case now := <-ticker.C:
				a.engine.Tick(now)
			}
		}
	})

	// HTTP server.
	srv := &http.Server{
		Addr:    a.cfg.Server.ListenAddr,
		Handler: observe.Middleware(a.metrics)(a.routes()),
	}
	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr, "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers
// are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.engine.Stop()

		// Flush buffered save data before anything closes underneath it.
		if err := a.store.Persist(ctx); err != nil {
			slog.Warn("persist save data", "error", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(ctx); err != nil {
				slog.Warn("closer error", "index", i, "error", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
