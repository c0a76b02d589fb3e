package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/gantry/internal/planfile"
	"github.com/papapumpkin/gantry/internal/planner"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Import plan files on every edit and keep schedules recomputed",
	Long: `Imports every TOML or YAML plan in dir, then watches it. Each edited plan
is re-imported; removed plans are ignored. A background recomputer resolves
any project whose tasks change while the watcher runs. Stop with Ctrl-C.`,
	Args: cobra.MaximumNArgs(1),
	RunE: withApp(runWatch),
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(ctx context.Context, a *app, _ *cobra.Command, args []string) error {
	dir := a.cfg.Watch.Dir
	if len(args) == 1 {
		dir = args[0]
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := planfile.NewWatcher(dir, a.cfg.Watch.Debounce)
	if err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	if err := w.Start(); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	defer w.Stop()

	rc := planner.NewRecomputer(a.store, a.bus,
		planner.WithDebounce(a.cfg.Watch.Debounce),
		planner.WithQueueSize(a.cfg.Recompute.QueueSize),
		planner.WithRecomputeLogger(a.logger),
		planner.WithRecomputeTelemetry(a.tel))
	done := make(chan error, 1)
	go func() { done <- rc.Run(ctx) }()

	for _, ch := range w.Scan() {
		applyChange(ctx, a, ch)
	}
	a.printer.Info(fmt.Sprintf("watching %s for plan changes", dir))

	for {
		select {
		case <-ctx.Done():
			return <-done
		case ch, ok := <-w.Changes:
			if !ok {
				stop()
				return <-done
			}
			applyChange(ctx, a, ch)
		}
	}
}

// applyChange imports one plan file edit. Failures are reported and the
// watcher keeps running.
func applyChange(ctx context.Context, a *app, ch planfile.Change) {
	switch {
	case ch.Removed:
		a.logger.Info("plan file removed; stored project kept", "path", ch.Path)
	case ch.Err != nil:
		a.errPrinter.Rejected(ch.Err)
	default:
		res, err := a.svc.ImportPlan(ctx, ch.Plan)
		if err != nil {
			a.errPrinter.Rejected(err)
			return
		}
		a.printer.Result(fmt.Sprintf("imported %s into %s", ch.Path, ch.Plan.ProjectID), res)
		if len(res.Requests) > 0 {
			a.printer.Rebaselines(res.Requests)
		}
	}
}
