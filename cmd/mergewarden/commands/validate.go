package commands

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/mergewarden/mergewarden/internal/core/facts"
	"github.com/mergewarden/mergewarden/internal/core/rules"
)

// validateCmd represents the validate command.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the rule file for errors without running anything",
	Long: `Compiles every rule in the config file and reports all malformed rules,
duplicate names, bad predicates and broken message templates. Also warns
about predicates over attribute names the engine never produces (those
predicates always evaluate to false).

Exits non-zero when any rule fails to compile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate()
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate() error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}

	ruleset, errs := cfg.CompileRules()
	for _, e := range errs {
		fmt.Printf("error: %v\n", e)
	}

	warnings := 0
	for _, r := range ruleset.Rules {
		for _, p := range rules.Predicates(r.Condition) {
			if !slices.Contains(facts.KnownAttributes, p.Attr) {
				fmt.Printf("warning: rule %q references unknown attribute %q (always false)\n", r.Name, p.Attr)
				warnings++
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s: %d invalid rule(s)", path, len(errs))
	}

	fmt.Printf("%s: %d rule(s) valid, %d warning(s)\n", path, len(ruleset.Rules), warnings)
	return nil
}
