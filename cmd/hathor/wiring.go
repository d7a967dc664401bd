package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/redinc23/hathor-red/internal/angel"
	"github.com/redinc23/hathor-red/internal/config"
	"github.com/redinc23/hathor-red/internal/events"
	"github.com/redinc23/hathor-red/internal/github"
	"github.com/redinc23/hathor-red/internal/ml"
	"github.com/redinc23/hathor-red/internal/notify"
	"github.com/redinc23/hathor-red/internal/state"
	"github.com/redinc23/hathor-red/internal/state/postgres"
	"github.com/redinc23/hathor-red/internal/state/sqlite"
	"github.com/redinc23/hathor-red/internal/teach"
	"github.com/redinc23/hathor-red/internal/vector"
)

// mustConfig loads the configuration or exits.
func mustConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Run 'hathor init' to create a starter configuration.\n")
		os.Exit(1)
	}
	return cfg
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStore builds the configured state backend.
func openStore(ctx context.Context, cfg *config.Config) (state.Store, error) {
	switch cfg.State.Backend {
	case "sqlite":
		return sqlite.New(cfg.State.Path)
	case "postgres":
		return postgres.New(ctx, cfg.State.DSN(), nil)
	case "memory":
		return state.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown state backend: %q", cfg.State.Backend)
	}
}

// stack is the wired service graph shared by the guardian commands.
type stack struct {
	store     state.Store
	github    *github.Client
	engine    ml.Engine
	completer ml.Completer
	notifier  notify.Notifier
	vectors   vector.Store
	bus       *events.Bus
	angel     *angel.Angel
}

// buildStack wires every port from the configuration. Any failure is
// fatal: a half-wired guardian must not start.
func buildStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) *stack {
	store, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: opening state store: %v\n", err)
		os.Exit(1)
	}

	gh, err := github.NewClient(&cfg.GitHub)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: building GitHub client: %v\n", err)
		os.Exit(1)
	}

	engine, completer, err := ml.New(&cfg.ML, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: building ML engine: %v\n", err)
		os.Exit(1)
	}

	notifier, err := notify.New(&cfg.Notify)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: building notifier: %v\n", err)
		os.Exit(1)
	}

	vectors, err := vector.New(&cfg.Vector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: opening vector index: %v\n", err)
		os.Exit(1)
	}

	bus := events.NewBus(store)

	a, err := angel.New(angel.Deps{
		GitHub:   gh,
		Store:    store,
		Engine:   engine,
		Notifier: notifier,
		Vectors:  vectors,
		Bus:      bus,
		Logger:   logger,
	}, cfg.Angel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: building angel: %v\n", err)
		os.Exit(1)
	}

	return &stack{
		store:     store,
		github:    gh,
		engine:    engine,
		completer: completer,
		notifier:  notifier,
		vectors:   vectors,
		bus:       bus,
		angel:     a,
	}
}

func (s *stack) Close() {
	if err := s.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: closing state store: %v\n", err)
	}
}

// buildTeach wires the lighter stack the knowledge commands need.
func buildTeach(cfg *config.Config, logger *slog.Logger) *teach.Engine {
	vectors, err := vector.New(&cfg.Vector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: opening vector index: %v\n", err)
		os.Exit(1)
	}

	_, completer, err := ml.New(&cfg.ML, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: building ML engine: %v\n", err)
		os.Exit(1)
	}

	engine, err := teach.NewEngine(vectors, completer, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: building teaching engine: %v\n", err)
		os.Exit(1)
	}
	return engine
}

// parseRepoArg splits an "owner/repo" argument.
func parseRepoArg(arg string) (string, string, error) {
	parts := strings.Split(arg, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("expected owner/repo, got %q", arg)
	}
	return parts[0], parts[1], nil
}
