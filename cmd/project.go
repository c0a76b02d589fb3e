package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/gantry/internal/planfile"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Create, import and inspect projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Create an empty project",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runProjectCreate),
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Args:  cobra.NoArgs,
	RunE:  withApp(runProjectList),
}

var projectImportCmd = &cobra.Command{
	Use:   "import <plan-file>",
	Short: "Import a TOML or YAML plan, replacing the project's tasks",
	Long: `Reads a plan file and replaces the tasks and milestones of the project it
names, creating the project if needed. The imported schedule is fully
recomputed before it is stored. A plan whose dependencies form a cycle is
rejected as a whole.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runProjectImport),
}

var projectShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a project's tasks, or export it as a plan file",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runProjectShow),
}

func init() {
	projectCreateCmd.Flags().String("name", "", "display name")
	projectShowCmd.Flags().String("export", "", "write the project as a plan in this format (toml or yaml) to stdout")

	projectCmd.AddCommand(projectCreateCmd, projectListCmd, projectImportCmd, projectShowCmd)
	rootCmd.AddCommand(projectCmd)
}

func runProjectCreate(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	p, err := a.svc.CreateProject(ctx, args[0], name)
	if err != nil {
		return err
	}
	a.printer.Success(fmt.Sprintf("project %s created", p.ID))
	return nil
}

func runProjectList(ctx context.Context, a *app, _ *cobra.Command, _ []string) error {
	projects, err := a.svc.Projects(ctx)
	if err != nil {
		return err
	}
	a.printer.Projects(projects)
	return nil
}

func runProjectImport(ctx context.Context, a *app, _ *cobra.Command, args []string) error {
	plan, err := planfile.Load(args[0])
	if err != nil {
		return a.rejected(err)
	}
	res, err := a.svc.ImportPlan(ctx, plan)
	if err != nil {
		return a.rejected(err)
	}
	a.printer.Result(fmt.Sprintf("imported %s into %s", args[0], plan.ProjectID), res)
	if len(res.Requests) > 0 {
		a.printer.Info(fmt.Sprintf("%d plan baseline(s) differ from the stored ones; opened for review:", len(res.Requests)))
		a.printer.Rebaselines(res.Requests)
	}
	return nil
}

func runProjectShow(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
	snap, err := a.svc.Snapshot(ctx, args[0])
	if err != nil {
		return err
	}

	if export, _ := cmd.Flags().GetString("export"); export != "" {
		f := planfile.FromProject(snap.Project.ID, snap.Project.Name, snap.Tasks, snap.Milestones)
		data, err := planfile.Encode(f, planfile.Format(export))
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s (revision %d)\n", snap.Project.ID, snap.Project.Name, snap.Project.Revision)
	a.printer.Tasks(snap.Tasks)
	return nil
}
