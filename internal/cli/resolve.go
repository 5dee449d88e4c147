package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rv-tools/rv/internal/resolver"
)

var (
	resolveUpdate    []string
	resolveUpdateAll bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Recompute and write the lockfile without touching the library",
	Long: `resolve re-resolves the project's dependency closure and writes the
result to rproject.lock. With no flags, direct dependencies are
re-resolved against their existing lockfile pins (a locked version
that still satisfies its constraint is kept even when repositories
now offer newer matches); pass --update to ignore
specific packages' current pins, or --update-all to ignore every
locked package's pin.`,
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().StringSliceVar(&resolveUpdate, "update", nil,
		"package names to re-resolve ignoring their current lockfile pin")
	resolveCmd.Flags().BoolVar(&resolveUpdateAll, "update-all", false,
		"re-resolve every locked package ignoring its current pin")
}

func runResolve(cmd *cobra.Command, args []string) error {
	dir := projectDir
	pctx, err := loadProjectContext(dir)
	if err != nil {
		return err
	}

	ctx := context.Background()
	res, err := resolveForCommand(ctx, pctx, resolveUpdateAll, resolveUpdate)
	if err != nil {
		return err
	}

	if err := saveLockFromResolution(pctx.lock, pctx.project, res); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "resolved %d packages\n", len(res.Resolved))
	return nil
}

// resolveForCommand picks Resolve vs. ResolveForUpdate based on the
// --update/--update-all flags, shared by resolve and (in a future
// extension) any other command that needs the same selection.
func resolveForCommand(ctx context.Context, pctx *projectContext, updateAll bool, update []string) (*resolver.Resolution, error) {
	if updateAll {
		return pctx.resolver.ResolveForUpdate(ctx, nil)
	}
	if len(update) > 0 {
		return pctx.resolver.ResolveForUpdate(ctx, update)
	}
	specs, err := requestsFromDependencies(pctx.project)
	if err != nil {
		return nil, err
	}
	return pctx.resolver.Resolve(ctx, specs)
}
