package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rv-tools/rv/internal/plan"
	"github.com/rv-tools/rv/internal/ui"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what a sync would install, update, or remove",
	Long: `plan resolves the project's dependency closure against its lockfile
and repositories, then diffs the result against the installed library
state, without changing anything on disk.`,
	RunE: runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	applyColorEnv()

	dir := projectDir
	pctx, err := loadProjectContext(dir)
	if err != nil {
		return err
	}

	specs, err := requestsFromDependencies(pctx.project)
	if err != nil {
		return err
	}

	res, err := pctx.resolver.Resolve(context.Background(), specs)
	if err != nil {
		return err
	}

	p := plan.Build(res, pctx.state)
	ui.PrintPlan(cmd.OutOrStdout(), p)
	if p.IsEmpty() {
		fmt.Fprintln(cmd.OutOrStdout(), "library is up to date")
	}
	return nil
}
