package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/gantry/internal/planner"
	"github.com/papapumpkin/gantry/internal/schedule"
)

var milestoneCmd = &cobra.Command{
	Use:   "milestone",
	Short: "Group tasks into milestones and show their date ranges",
}

var milestoneSetCmd = &cobra.Command{
	Use:   "set <project> <id>",
	Short: "Create or replace a milestone",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runMilestoneSet),
}

var milestoneShowCmd = &cobra.Command{
	Use:   "show <project> [id]",
	Short: "Show milestone date ranges",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  withApp(runMilestoneShow),
}

func init() {
	milestoneSetCmd.Flags().String("name", "", "display name")
	milestoneSetCmd.Flags().StringSlice("task", nil, "member task id, repeatable")

	milestoneCmd.AddCommand(milestoneSetCmd, milestoneShowCmd)
	rootCmd.AddCommand(milestoneCmd)
}

func runMilestoneSet(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	tasks, _ := cmd.Flags().GetStringSlice("task")

	m := schedule.Milestone{ID: args[1], Name: name, TaskIDs: tasks}
	if err := a.svc.SetMilestone(ctx, args[0], m); err != nil {
		return a.rejected(err)
	}
	view, err := a.svc.Milestone(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	a.printer.Success(fmt.Sprintf("milestone %s saved", m.ID))
	a.printer.Milestones([]planner.MilestoneView{view})
	return nil
}

func runMilestoneShow(ctx context.Context, a *app, _ *cobra.Command, args []string) error {
	if len(args) == 2 {
		view, err := a.svc.Milestone(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		a.printer.Milestones([]planner.MilestoneView{view})
		return nil
	}
	views, err := a.svc.Milestones(ctx, args[0])
	if err != nil {
		return err
	}
	a.printer.Milestones(views)
	return nil
}
