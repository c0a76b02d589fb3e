package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/gantry/internal/ui"
)

var reportCmd = &cobra.Command{
	Use:   "report <project>",
	Short: "Render a project report",
	Long:  "Renders one view of a project: " + strings.Join(ui.Views(), ", ") + ".",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runReport),
}

func init() {
	reportCmd.Flags().String("view", "plan", "report view: "+strings.Join(ui.Views(), ", "))
	rootCmd.AddCommand(reportCmd)
}

func runReport(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	view, _ := cmd.Flags().GetString("view")
	strategy, err := ui.StrategyFor(view)
	if err != nil {
		return err
	}
	r, err := buildReport(ctx, a, args[0])
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), strategy.Render(r))
	return nil
}

// buildReport gathers every view's inputs from one project.
func buildReport(ctx context.Context, a *app, projectID string) (ui.Report, error) {
	snap, err := a.svc.Snapshot(ctx, projectID)
	if err != nil {
		return ui.Report{}, err
	}
	r := ui.Report{Project: snap.Project, Tasks: snap.Tasks}
	if r.Critical, err = a.svc.CriticalPath(ctx, projectID); err != nil {
		return ui.Report{}, err
	}
	if r.Slack, err = a.svc.Slack(ctx, projectID); err != nil {
		return ui.Report{}, err
	}
	if r.Conflicts, err = a.svc.Conflicts(ctx, projectID); err != nil {
		return ui.Report{}, err
	}
	if r.Streams, err = a.svc.Streams(ctx, projectID); err != nil {
		return ui.Report{}, err
	}
	if r.Milestones, err = a.svc.Milestones(ctx, projectID); err != nil {
		return ui.Report{}, err
	}
	return r, nil
}
