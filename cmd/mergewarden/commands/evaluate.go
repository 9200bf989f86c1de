package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mergewarden/mergewarden/internal/core/engine"
	"github.com/mergewarden/mergewarden/internal/core/pipeline"
)

var (
	evalRepo   string
	evalNumber int
	evalApply  bool
)

// evaluateCmd represents the evaluate command.
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate the rule set against one live pull request",
	Long: `Fetches the current state of a pull request, evaluates every rule against
it and prints the decision as JSON. Without --apply no side effects are
performed; with --apply the winning actions are dispatched exactly as the
webhook path would.

Usage:
  mergewarden evaluate --repo org/repo --number 42 [--apply]

Environment variables:
  GITHUB_TOKEN   Required for private repositories and for --apply.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEvaluate()
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&evalRepo, "repo", "", "Repository in org/repo form (required)")
	evaluateCmd.Flags().IntVar(&evalNumber, "number", 0, "Pull request number (required)")
	evaluateCmd.Flags().BoolVar(&evalApply, "apply", false, "Dispatch the winning actions instead of just printing the decision")
	_ = evaluateCmd.MarkFlagRequired("repo")
	_ = evaluateCmd.MarkFlagRequired("number")
}

func runEvaluate() error {
	parts := strings.SplitN(evalRepo, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid --repo %q (expected org/repo)", evalRepo)
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	ruleset := compileRules(cfg)

	ctx := context.Background()
	hostClient := newHostClient(ctx, cfg)

	preset := "evaluate"
	if evalApply {
		preset = "governance"
	}

	eng, err := engine.New(cfg, ruleset, hostClient,
		engine.WithPreset(preset),
		engine.WithDryRun(dryRun))
	if err != nil {
		return err
	}

	ev := &pipeline.Event{
		Type:   pipeline.EventPullRequest,
		Org:    parts[0],
		Repo:   parts[1],
		Number: evalNumber,
	}

	result, err := eng.HandleEvent(ctx, ev)
	if result != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(result); encErr != nil {
			return encErr
		}
	}
	return err
}
