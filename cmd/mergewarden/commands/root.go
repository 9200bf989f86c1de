// Package commands defines the merge-warden CLI commands.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	dryRun  bool
)

// rootCmd is the base command all subcommands attach to.
var rootCmd = &cobra.Command{
	Use:   "mergewarden",
	Short: "Pull-request governance bot: gate merges on CI and reviews, auto-close protected branches",
	Long: `merge-warden evaluates a declarative rule set against the live state of
pull requests and applies the resulting actions: merging when CI and review
requirements are met, closing PRs opened against protected branches, and
posting explanatory comments.

Rules are loaded from a YAML file (see 'mergewarden validate'). The engine
is driven either by a webhook listener ('mergewarden serve') or one-shot
against a single pull request ('mergewarden evaluate').`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file (default: search standard locations)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Evaluate without side effects")
}
