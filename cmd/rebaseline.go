package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/gantry/internal/rebaseline"
	"github.com/papapumpkin/gantry/internal/schedule"
)

var rebaselineCmd = &cobra.Command{
	Use:   "rebaseline",
	Short: "Request and decide changes to task baselines",
}

var rebaselineRequestCmd = &cobra.Command{
	Use:   "request <project> <task>",
	Short: "Propose a new baseline date for a task",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runRebaselineRequest),
}

var rebaselineApproveCmd = &cobra.Command{
	Use:   "approve <request-id>",
	Short: "Approve a pending request and apply the new baseline",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runRebaselineDecide(true)),
}

var rebaselineRejectCmd = &cobra.Command{
	Use:   "reject <request-id>",
	Short: "Reject a pending request",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runRebaselineDecide(false)),
}

var rebaselineListCmd = &cobra.Command{
	Use:   "list <project>",
	Short: "List rebaseline requests",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runRebaselineList),
}

func init() {
	rebaselineRequestCmd.Flags().String("field", "end", "baseline bound to move: start or end")
	rebaselineRequestCmd.Flags().String("date", "", "proposed date (YYYY-MM-DD)")
	rebaselineRequestCmd.Flags().String("reason", "", "why the baseline should move")
	_ = rebaselineRequestCmd.MarkFlagRequired("date")

	for _, c := range []*cobra.Command{rebaselineApproveCmd, rebaselineRejectCmd} {
		c.Flags().String("note", "", "decision note")
	}
	rebaselineListCmd.Flags().String("status", "", "only show pending, approved or rejected requests")

	rebaselineCmd.AddCommand(rebaselineRequestCmd, rebaselineApproveCmd, rebaselineRejectCmd, rebaselineListCmd)
	rootCmd.AddCommand(rebaselineCmd)
}

func runRebaselineRequest(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	rawField, _ := cmd.Flags().GetString("field")
	rawDate, _ := cmd.Flags().GetString("date")
	reason, _ := cmd.Flags().GetString("reason")

	field, err := rebaseline.ParseField(rawField)
	if err != nil {
		return a.rejected(err)
	}
	date, err := schedule.ParseDate(rawDate)
	if err != nil {
		return err
	}

	req, err := a.svc.RequestRebaseline(ctx, args[0], args[1], field, date, reason)
	if err != nil {
		return a.rejected(err)
	}
	a.printer.Success(fmt.Sprintf("rebaseline request %s opened", req.ID))
	a.printer.Rebaselines([]rebaseline.Request{req})
	return nil
}

func runRebaselineDecide(approve bool) func(context.Context, *app, *cobra.Command, []string) error {
	return func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		note, _ := cmd.Flags().GetString("note")
		req, err := a.svc.DecideRebaseline(ctx, args[0], approve, note)
		if err != nil {
			return a.rejected(err)
		}
		a.printer.Success(fmt.Sprintf("request %s %s", req.ID, req.Status))
		a.printer.Rebaselines([]rebaseline.Request{req})
		return nil
	}
}

func runRebaselineList(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	status, _ := cmd.Flags().GetString("status")
	switch rebaseline.Status(status) {
	case "", rebaseline.StatusPending, rebaseline.StatusApproved, rebaseline.StatusRejected:
	default:
		return fmt.Errorf("--status %q: want pending, approved or rejected", status)
	}
	reqs, err := a.svc.ListRebaselines(ctx, args[0], rebaseline.Status(status))
	if err != nil {
		return err
	}
	a.printer.Rebaselines(reqs)
	return nil
}
