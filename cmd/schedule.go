package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var cascadeCmd = &cobra.Command{
	Use:   "cascade <project> <task>",
	Short: "Propagate a task's dates to everything downstream of it",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runCascade),
}

var recomputeCmd = &cobra.Command{
	Use:   "recompute <project>",
	Short: "Resolve every task of a project against its dependencies",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runRecompute),
}

var criticalPathCmd = &cobra.Command{
	Use:   "critical-path <project>",
	Short: "Show the longest chain of dependent tasks",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runCriticalPath),
}

var conflictsCmd = &cobra.Command{
	Use:   "conflicts <project>",
	Short: "List tasks whose dates violate a dependency",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runConflicts),
}

func init() {
	rootCmd.AddCommand(cascadeCmd, recomputeCmd, criticalPathCmd, conflictsCmd)
}

func runCascade(ctx context.Context, a *app, _ *cobra.Command, args []string) error {
	res, err := a.svc.Cascade(ctx, args[0], args[1])
	if err != nil {
		return a.rejected(err)
	}
	a.printer.Result("cascaded "+args[1], res)
	return nil
}

func runRecompute(ctx context.Context, a *app, _ *cobra.Command, args []string) error {
	res, err := a.svc.RecomputeAll(ctx, args[0])
	if err != nil {
		return err
	}
	a.printer.Result("recomputed "+args[0], res)
	return nil
}

func runCriticalPath(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	cp, err := a.svc.CriticalPath(ctx, args[0])
	if err != nil {
		return err
	}
	if len(cp.TaskIDs) == 0 {
		a.printer.Info("no tasks")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%d days)\n", strings.Join(cp.TaskIDs, " -> "), cp.TotalDays)
	return nil
}

func runConflicts(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	conflicts, err := a.svc.Conflicts(ctx, args[0])
	if err != nil {
		return err
	}
	if len(conflicts) == 0 {
		a.printer.Success("no schedule conflicts")
		return nil
	}
	out := cmd.OutOrStdout()
	for _, tc := range conflicts {
		for _, c := range tc.Conflicts {
			fmt.Fprintf(out, "%s\t%s\t%s\texpected %s\tactual %s\n",
				tc.Task.ID, c.EdgeID, c.Type.Short(), c.ExpectedDate, c.ActualDate)
		}
	}
	return nil
}
