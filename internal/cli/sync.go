package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rv-tools/rv/internal/installer"
	"github.com/rv-tools/rv/internal/plan"
	"github.com/rv-tools/rv/internal/syncengine"
	"github.com/rv-tools/rv/internal/ui"
)

var (
	syncInstallCmd []string
	syncDryRun     bool
	syncLinkMode   string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Resolve, then install/update/remove packages to match the project",
	Long: `sync resolves the project's dependency closure, computes a plan against
the installed library state, and executes it: fetching each package,
optionally delegating to an external install command, and materializing
the result into the library directory. The library state is saved after
every executed run, including one in which some packages failed; the
lockfile is written only when every step succeeds. A dry run or an
empty plan writes neither.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringSliceVar(&syncInstallCmd, "install-cmd", nil,
		`install command template, e.g. "mytool,--source,{{source}},--target,{{target}}"`)
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "print the plan without executing it")
	syncCmd.Flags().StringVar(&syncLinkMode, "link-mode", "",
		`materialization strategy ("hardlink", "clone", "symlink", "copy"); auto-probed if unset`)
}

func runSync(cmd *cobra.Command, args []string) error {
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

	if syncDryRun || p.IsEmpty() {
		return nil
	}

	var inst installer.Installer
	if len(syncInstallCmd) > 0 {
		inst = installer.NewCommandInstaller(syncInstallCmd)
	}

	engine := syncengine.New(pctx.project.LibraryDir(dir), inst)
	engine.PlatformLibDir = platformLibDir()
	engine.Concurrency = syncConcurrency(engine.Concurrency)
	engine.LinkMode = syncLinkMode
	engine.Reporter = ui.NewReporter(cmd.OutOrStdout())

	result, syncErr := engine.Run(context.Background(), p, res, pctx.state)

	if err := pctx.state.Save(); err != nil {
		return err
	}
	if syncErr == nil {
		if err := saveLockFromResolution(pctx.lock, pctx.project, res); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "installed %d, updated %d, removed %d, failed %d\n",
		len(result.Installed), len(result.Updated), len(result.Removed), len(result.Failed))

	return syncErr
}
