package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/gantry/internal/config"
	"github.com/papapumpkin/gantry/internal/events"
	"github.com/papapumpkin/gantry/internal/planner"
	"github.com/papapumpkin/gantry/internal/store"
	"github.com/papapumpkin/gantry/internal/telemetry"
	"github.com/papapumpkin/gantry/internal/ui"
)

// app is the set of components one command invocation works with.
type app struct {
	cfg        config.Config
	logger     *slog.Logger
	store      *store.Store
	bus        *events.Bus
	tel        *telemetry.Emitter
	svc        *planner.Service
	printer    *ui.Printer
	errPrinter *ui.Printer // rejections, on stderr
}

// openApp loads configuration and opens the store. Callers must Close it.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	st, err := store.Open(cmd.Context(), cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}

	var tel *telemetry.Emitter
	if cfg.TelemetryPath != "" {
		if tel, err = telemetry.NewEmitter(cfg.TelemetryPath); err != nil {
			st.Close()
			return nil, err
		}
	}

	bus := events.NewBus(logger)
	svc := planner.New(st,
		planner.WithBus(bus),
		planner.WithTelemetry(tel),
		planner.WithLogger(logger))

	noColor, _ := cmd.Flags().GetBool("no-color")
	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		bus:        bus,
		tel:        tel,
		svc:        svc,
		printer:    ui.New(cmd.OutOrStdout(), noColor),
		errPrinter: ui.New(cmd.ErrOrStderr(), noColor),
	}, nil
}

func (a *app) Close() error {
	a.bus.Close()
	if err := a.tel.Close(); err != nil {
		a.logger.Warn("closing telemetry", "err", err)
	}
	return a.store.Close()
}

// newLogger builds the stderr logger described by cfg. Verbose forces
// debug level.
func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.LogFormat) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// withApp adapts a handler that needs an open app into a cobra RunE.
func withApp(run func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd.Context(), a, cmd, args)
	}
}

// errReported marks an error the command already printed.
var errReported = errors.New("rejected")

// rejected prints err on stderr and returns an error that makes the command
// exit non-zero without printing it again.
func (a *app) rejected(err error) error {
	a.errPrinter.Rejected(err)
	return fmt.Errorf("%w: %v", errReported, err)
}
