// Package config loads process configuration for the sonec CLI/server
// entrypoints. The library facade (package sonec) never depends on this
// package directly — it accepts plain Go values — so tests can configure a
// Runtime without going through chu/env loading at all.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rakunlabs/chu"
	"github.com/rakunlabs/chu/loader/loaderenv"
	"github.com/rakunlabs/logi"
)

var Service = ""

type Config struct {
	LogLevel string `cfg:"log_level,no_prefix" default:"info"`

	// DatabaseURL is consulted the way spec §6 describes: a native SQLite
	// path, "sqlite://:memory:", "sqlite:///<path>", or empty for in-memory.
	DatabaseURL string `cfg:"database_url" log:"-"`

	HTTP HTTP `cfg:"http"`

	Collect Collect `cfg:"collect"`

	Server Server `cfg:"server"`

	Schedule *Schedule `cfg:"schedule"`
}

// HTTP configures the transport used by provider clients.
type HTTP struct {
	// Timeout bounds a single outbound request. Spec §5 default is 10s.
	Timeout time.Duration `cfg:"timeout" default:"10s"`
}

// Collect holds defaults applied to collect() calls issued from the CLI
// when the corresponding flag is left unset.
type Collect struct {
	PageLimit int `cfg:"page_limit" default:"100"`
}

// Server configures the thin HTTP surface (internal/httpapi).
type Server struct {
	Host string `cfg:"host"`
	Port string `cfg:"port" default:"8080"`
}

// Schedule configures the optional recurring-collection loop
// (internal/scheduler). Nil disables it entirely.
type Schedule struct {
	Cron     string `cfg:"cron"`
	Provider string `cfg:"provider"`
	Source   string `cfg:"source"`
	Q        string `cfg:"q"`
}

// Load reads process configuration the way the teacher's at.Load does:
// chu for layered file/env loading, with a "SONEC_" environment prefix for
// everything except the two Bluesky credential variables and DATABASE_URL,
// which spec §6 names explicitly and which are read directly by their
// owning components (internal/config does not shadow them).
func Load(ctx context.Context, path string) (*Config, error) {
	var cfg Config
	if err := chu.Load(ctx, path, &cfg, chu.WithLoaderOption(loaderenv.New(loaderenv.WithPrefix("SONEC_")))); err != nil {
		return nil, err
	}

	if err := logi.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("set log level %s: %w", cfg.LogLevel, err)
	}

	slog.Info("loaded configuration", "config", chu.MarshalMap(cfg))

	return &cfg, nil
}
