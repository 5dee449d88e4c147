// Package cli implements the command-line interface for rv.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose    int
	projectDir string
)

// rootCmd is the base command for rv.
var rootCmd = &cobra.Command{
	Use:   "rv",
	Short: "A dependency manager for statistical-computing packages",
	Long: `rv resolves, locks, and syncs a project's package dependencies against
configured repositories, version control, local paths, and the platform's
own bundled packages, the way rproject.hcl describes them.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "Increase verbosity (-v info, -vv debug, -vvv trace)")
	rootCmd.PersistentFlags().StringVar(&projectDir, "dir", ".", "project root directory")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}
