package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/gantry/internal/planner"
	"github.com/papapumpkin/gantry/internal/schedule"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Add, edit, pin and delete tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <project> <id>",
	Short: "Add a task and resolve it against its dependencies",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runTaskAdd),
}

var taskSetCmd = &cobra.Command{
	Use:   "set <project> <id>",
	Short: "Change a task's start or duration and cascade to its dependents",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runTaskSet),
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete <project> <id>",
	Short: "Delete a task and reschedule its former dependents",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runTaskDelete),
}

var taskOverrideCmd = &cobra.Command{
	Use:   "override <project> <id>",
	Short: "Pin a task's dates so cascades leave them alone",
	Long: `Pins a task: later cascades never move its dates, though it is still
flagged when its dependencies are violated. --off unpins the task and snaps
it back to its constraints.`,
	Args: cobra.ExactArgs(2),
	RunE: withApp(runTaskOverride),
}

var dependentsCmd = &cobra.Command{
	Use:   "dependents <project> <task>",
	Short: "List the tasks that directly depend on a task",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runDependents),
}

func init() {
	taskAddCmd.Flags().String("name", "", "display name")
	taskAddCmd.Flags().String("start", "", "start date (YYYY-MM-DD)")
	taskAddCmd.Flags().Int("duration", 0, "duration in days")
	taskAddCmd.Flags().StringSlice("after", nil, "dependency as predecessor:type:lag, repeatable")

	taskSetCmd.Flags().String("start", "", "new start date (YYYY-MM-DD)")
	taskSetCmd.Flags().Int("duration", -1, "new duration in days")

	taskOverrideCmd.Flags().Bool("off", false, "remove the override")

	taskCmd.AddCommand(taskAddCmd, taskSetCmd, taskDeleteCmd, taskOverrideCmd)
	rootCmd.AddCommand(taskCmd, dependentsCmd)
}

func runTaskAdd(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	startRaw, _ := cmd.Flags().GetString("start")
	duration, _ := cmd.Flags().GetInt("duration")
	after, _ := cmd.Flags().GetStringSlice("after")

	if duration < 0 {
		return fmt.Errorf("--duration must not be negative")
	}
	start, err := parseOptionalDate(startRaw)
	if err != nil {
		return err
	}
	for _, raw := range after {
		if err := schedule.ValidateEncoding(raw); err != nil {
			return a.rejected(err)
		}
	}

	t := schedule.Task{
		ID:           args[1],
		Name:         name,
		DurationDays: duration,
		StartDate:    start,
		Dependencies: schedule.ParseDependencies(after),
	}
	res, err := a.svc.AddTask(ctx, args[0], t)
	if err != nil {
		return a.rejected(err)
	}
	a.printer.Result("added "+args[1], res)
	return nil
}

func runTaskSet(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	var patch planner.TaskPatch
	if cmd.Flags().Changed("start") {
		raw, _ := cmd.Flags().GetString("start")
		start, err := parseOptionalDate(raw)
		if err != nil {
			return err
		}
		patch.Start = &start
	}
	if cmd.Flags().Changed("duration") {
		d, _ := cmd.Flags().GetInt("duration")
		if d < 0 {
			return fmt.Errorf("--duration must not be negative")
		}
		patch.DurationDays = &d
	}
	if patch.Start == nil && patch.DurationDays == nil {
		return fmt.Errorf("nothing to change: pass --start or --duration")
	}

	res, err := a.svc.UpdateTask(ctx, args[0], args[1], patch)
	if err != nil {
		return a.rejected(err)
	}
	a.printer.Result("updated "+args[1], res)
	return nil
}

func runTaskDelete(ctx context.Context, a *app, _ *cobra.Command, args []string) error {
	res, err := a.svc.DeleteTask(ctx, args[0], args[1])
	if err != nil {
		return a.rejected(err)
	}
	a.printer.Result("deleted "+args[1], res)
	return nil
}

func runTaskOverride(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	off, _ := cmd.Flags().GetBool("off")
	res, err := a.svc.SetManualOverride(ctx, args[0], args[1], !off)
	if err != nil {
		return a.rejected(err)
	}
	verb := "pinned "
	if off {
		verb = "unpinned "
	}
	a.printer.Result(verb+args[1], res)
	return nil
}

func runDependents(ctx context.Context, a *app, _ *cobra.Command, args []string) error {
	tasks, err := a.svc.DependentTasks(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	a.printer.Tasks(tasks)
	return nil
}

// parseOptionalDate parses YYYY-MM-DD; an empty string is the unset date.
func parseOptionalDate(raw string) (schedule.Date, error) {
	if raw == "" {
		return schedule.Date{}, nil
	}
	return schedule.ParseDate(raw)
}
