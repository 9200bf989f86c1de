package steps

import (
	"log"

	"github.com/mergewarden/mergewarden/internal/core/pipeline"
	"github.com/mergewarden/mergewarden/internal/core/rules"
)

// RuleMatcher evaluates every rule against the fact set and resolves
// conflicts between the matching rules' actions.
type RuleMatcher struct{}

// NewRuleMatcher creates a new rule matcher step.
func NewRuleMatcher(deps *pipeline.Dependencies) *RuleMatcher {
	return &RuleMatcher{}
}

// Name returns the step name.
func (s *RuleMatcher) Name() string {
	return "rule_matcher"
}

// Run matches rules and resolves the decision. When nothing matches the
// pipeline stops quietly: silence is the expected common case.
func (s *RuleMatcher) Run(ctx *pipeline.Context) error {
	ctx.Matches = ctx.Rules.Match(ctx.Facts)

	for _, m := range ctx.Matches {
		ctx.Result.MatchedRules = append(ctx.Result.MatchedRules, m.Rule.Name)
	}

	if len(ctx.Matches) == 0 {
		ctx.Result.Skipped = true
		ctx.Result.SkipReason = "no rule matched"
		return pipeline.ErrSkipPipeline
	}

	decision := rules.Resolve(ctx.Matches)
	ctx.Decision = &decision

	for _, sup := range decision.Suppressed {
		log.Printf("[rule_matcher] suppressing %s from rule %q: rule %q won terminal precedence",
			sup.Action.Kind, sup.RuleName, decision.Terminal.RuleName)
		ctx.Result.Suppressed = append(ctx.Result.Suppressed,
			sup.RuleName+": "+string(sup.Action.Kind))
	}

	return nil
}
