package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Engine
	if cfg.Engine.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("engine.tick_interval %.3f must not be negative", cfg.Engine.TickInterval))
	}
	if cfg.Engine.DefaultLetterTime < 0 {
		errs = append(errs, fmt.Errorf("engine.default_letter_time %.3f must not be negative", cfg.Engine.DefaultLetterTime))
	}
	if cfg.Engine.TickInterval > 0.25 {
		slog.Warn("engine.tick_interval is very coarse; typewriter reveals will stutter",
			"tick_interval", cfg.Engine.TickInterval)
	}

	// Storage
	if cfg.Storage.Backend != "" && !cfg.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: memory, file, postgres", cfg.Storage.Backend))
	}
	if cfg.Storage.Backend == BackendFile && cfg.Storage.File.Path == "" {
		errs = append(errs, errors.New("storage.file.path is required when backend is file"))
	}
	if cfg.Storage.Backend == BackendPostgres && cfg.Storage.Postgres.DSN == "" {
		errs = append(errs, errors.New("storage.postgres.dsn is required when backend is postgres"))
	}
	if cfg.Storage.Backend == "" || cfg.Storage.Backend == BackendMemory {
		slog.Warn("storage backend is in-memory; save data will not survive a restart")
	}

	// Story
	if cfg.Story.ScriptPath == "" {
		errs = append(errs, errors.New("story.script_path is required"))
	}

	return errors.Join(errs...)
}
