// Command fabula is the entry point for the Fabula dialogue engine: a
// script validator, a terminal preview player, and the dev server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/fabula/internal/app"
	"github.com/MrWong99/fabula/internal/config"
	"github.com/MrWong99/fabula/internal/event"
	"github.com/MrWong99/fabula/internal/phase"
	"github.com/MrWong99/fabula/internal/playback"
	"github.com/MrWong99/fabula/internal/script"
	"github.com/MrWong99/fabula/internal/seen"
	"github.com/MrWong99/fabula/pkg/kv"
	"github.com/MrWong99/fabula/pkg/locale"
	"github.com/MrWong99/fabula/pkg/stage"
)

const usage = `usage: fabula <command> [flags]

commands:
  validate  check a script file for authoring mistakes
  preview   play one dialogue on the terminal
  serve     run the dev server (tick loop + HTTP API)

run "fabula <command> -h" for command flags
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	switch args[0] {
	case "validate":
		return runValidate(args[1:])
	case "preview":
		return runPreview(args[1:])
	case "serve":
		return runServe(args[1:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "fabula: unknown command %q\n\n%s", args[0], usage)
		return 2
	}
}

// runValidate loads a script file and reports every authoring issue.
// Exit code 1 when the script has errors, 0 when clean or warnings only.
func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	scriptPath := fs.String("script", "content/story.yaml", "path to the script YAML file")
	fallback := fs.String("fallback", string(locale.English), "fallback language code")
	fs.Parse(args)

	lib, ok := loadLibrary(*scriptPath)
	if !ok {
		return 1
	}

	issues := script.Validate(lib, *fallback)
	if len(issues) == 0 {
		fmt.Printf("%s: %d dialogues, no issues\n", *scriptPath, lib.Len())
		return 0
	}

	hardErrors := 0
	for _, issue := range issues {
		fmt.Println(issue)
		if issue.Severity == "error" {
			hardErrors++
		}
	}
	fmt.Printf("%s: %d dialogues, %d errors, %d warnings\n",
		*scriptPath, lib.Len(), hardErrors, len(issues)-hardErrors)
	if hardErrors > 0 {
		return 1
	}
	return 0
}

// runPreview plays a single dialogue on the terminal in real time, driving
// the engine with a wall-clock ticker. Space for advance and skip are not
// wired; the auto-advance timeout carries the session.
func runPreview(args []string) int {
	fs := flag.NewFlagSet("preview", flag.ExitOnError)
	scriptPath := fs.String("script", "content/story.yaml", "path to the script YAML file")
	dialogueID := fs.String("dialogue", "", "id of the dialogue to play (required)")
	lang := fs.String("lang", string(locale.English), "language code to render")
	fs.Parse(args)

	if *dialogueID == "" {
		fmt.Fprintln(os.Stderr, "fabula preview: -dialogue is required")
		return 2
	}

	lib, ok := loadLibrary(*scriptPath)
	if !ok {
		return 1
	}
	d, err := lib.Dialogue(*dialogueID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fabula preview: %v\n", err)
		if errors.Is(err, script.ErrNotFound) {
			fmt.Fprintf(os.Stderr, "known dialogues: %v\n", lib.IDs())
		}
		return 1
	}

	store := kv.NewMemStore()
	bus := event.NewBus()
	engine := playback.New(playback.Config{
		Panel:     stage.NewTermPanel(os.Stdout),
		Voice:     stage.SilentVoice{},
		Seen:      seen.New(seen.Config{KV: store}),
		Phases:    phase.New(phase.Config{Bus: bus}),
		Languages: localeStatic(*lang),
		Bus:       bus,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT)
	defer stop()

	if !engine.Play(d) {
		fmt.Fprintf(os.Stderr, "fabula preview: dialogue %q cannot be played\n", *dialogueID)
		return 1
	}

	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for engine.IsShowing() {
		select {
		case <-ctx.Done():
			engine.Stop()
			fmt.Println()
			return 0
		case now := <-ticker.C:
			engine.Tick(now)
		}
	}
	return 0
}

// runServe loads the config, wires the application, and runs it until a
// termination signal arrives.
func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "fabula.yaml", "path to the YAML configuration file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "fabula: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "fabula: %v\n", err)
		}
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("fabula starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// loadLibrary reads and indexes a script file, printing failures to stderr.
func loadLibrary(path string) (*script.Library, bool) {
	sf, err := script.LoadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fabula: %v\n", err)
		return nil, false
	}
	lib, err := script.NewLibrary(sf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fabula: %v\n", err)
		return nil, false
	}
	return lib, true
}

// localeStatic is a fixed-language provider for preview runs.
type localeStatic locale.Language

func (l localeStatic) Current() locale.Language            { return locale.Language(l) }
func (localeStatic) OnChange(func(locale.Language)) func() { return func() {} }

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
