package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/gantry/internal/schedule"
)

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Add and remove task dependencies",
}

var depAddCmd = &cobra.Command{
	Use:   "add <project> <task> <predecessor>",
	Short: "Make a task depend on a predecessor",
	Long: `Validates the new edge before storing it. Edges that reference a missing
task, name an unknown type or would close a cycle are rejected and the
project is left untouched. An accepted edge reschedules the task and every
task downstream of it.`,
	Args: cobra.ExactArgs(3),
	RunE: withApp(runDepAdd),
}

var depRmCmd = &cobra.Command{
	Use:   "rm <project> <task> <predecessor>",
	Short: "Remove a dependency and reschedule the task",
	Args:  cobra.ExactArgs(3),
	RunE:  withApp(runDepRm),
}

func init() {
	depAddCmd.Flags().StringP("type", "t", "FS", "dependency type: FS, SS, FF or SF")
	depAddCmd.Flags().Int("lag", 0, "lag in days; negative for lead time")

	depCmd.AddCommand(depAddCmd, depRmCmd)
	rootCmd.AddCommand(depCmd)
}

func runDepAdd(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	rawType, _ := cmd.Flags().GetString("type")
	lag, _ := cmd.Flags().GetInt("lag")

	typ, ok := schedule.ParseDependencyType(rawType)
	if !ok {
		return a.rejected(&schedule.ValidationError{
			Kind:          schedule.KindMalformedEncoding,
			TaskID:        args[1],
			PredecessorID: args[2],
			Reason:        fmt.Sprintf("unknown dependency type %q", rawType),
		})
	}

	id, res, err := a.svc.AddDependency(ctx, args[0], args[1], args[2], typ, lag)
	if err != nil {
		return a.rejected(err)
	}
	a.printer.Result(fmt.Sprintf("added %s (%s%+d)", id, typ.Short(), lag), res)
	return nil
}

func runDepRm(ctx context.Context, a *app, _ *cobra.Command, args []string) error {
	res, err := a.svc.RemoveDependency(ctx, args[0], args[1], args[2])
	if err != nil {
		return a.rejected(err)
	}
	a.printer.Result("removed "+string(schedule.NewEdgeID(args[1], args[2])), res)
	return nil
}
