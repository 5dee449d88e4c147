package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rv-tools/rv/internal/config"
	"github.com/rv-tools/rv/internal/lockfile"
	"github.com/rv-tools/rv/internal/manifest"
	"github.com/rv-tools/rv/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report how the installed library compares to the lockfile",
	Long: `status reads rproject.lock and the library's own state file and
reports, for each locked package, whether it is installed and matches,
missing, or stale relative to its lock entry. Unlike plan, status does
not consult repositories or re-resolve anything, so it works without
network access and reflects only what the lockfile already records.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	applyColorEnv()

	dir := projectDir
	project, err := config.LoadProject(dir)
	if err != nil {
		return err
	}

	lock, err := lockfile.Load(dir)
	if err != nil {
		return err
	}

	libraryDir := project.LibraryDir(dir)
	state, err := manifest.Load(libraryDir)
	if err != nil {
		return err
	}

	summary := map[string]int{"ok": 0, "missing": 0, "stale": 0, "untracked": 0}

	for _, name := range lock.PackageNames() {
		locked := lock.Get(name)
		installed := state.Get(name)
		switch {
		case installed == nil:
			summary["missing"]++
			fmt.Fprintf(cmd.OutOrStdout(), "  %s %s (%s)\n", ui.StatusGlyph("missing"), name, locked.Version)
		case installed.Version != locked.Version || installed.Source != locked.Source:
			summary["stale"]++
			fmt.Fprintf(cmd.OutOrStdout(), "  %s %s (%s -> %s)\n", ui.StatusGlyph("stale"), name, installed.Version, locked.Version)
		default:
			summary["ok"]++
			fmt.Fprintf(cmd.OutOrStdout(), "  %s %s (%s)\n", ui.StatusGlyph("ok"), name, locked.Version)
		}
	}

	for _, name := range state.PackageNames() {
		if lock.Has(name) {
			continue
		}
		summary["untracked"]++
		fmt.Fprintf(cmd.OutOrStdout(), "  %s %s (not in lockfile)\n", ui.StatusGlyph("untracked"), name)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d ok, %d stale, %d missing, %d untracked\n",
		summary["ok"], summary["stale"], summary["missing"], summary["untracked"])
	return nil
}
