package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tendant/media-registry/pkg/mediaregistry/config"
)

// app lazily builds the registry from configuration and keeps it for the
// lifetime of the process.
type app struct {
	load       func() (*config.ServerConfig, error)
	cfg        *config.ServerConfig
	components *config.Components
	verbose    bool
}

func newApp(load func() (*config.ServerConfig, error)) *app {
	return &app{load: load}
}

func loadEnvConfig() (*config.ServerConfig, error) {
	return config.Load(config.WithEnv())
}

func (a *app) config() (*config.ServerConfig, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := a.load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *app) logger() *slog.Logger {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (a *app) build(ctx context.Context) (*config.Components, error) {
	if a.components != nil {
		return a.components, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	components, err := cfg.Build(ctx, a.logger(), prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	a.components = components
	return components, nil
}

func (a *app) close() {
	if a.components != nil {
		a.components.Close()
		a.components = nil
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
