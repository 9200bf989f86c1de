package rules

import (
	"fmt"

	"github.com/mergewarden/mergewarden/internal/core/host"
)

// ActionKind tags the action variants a rule may carry.
type ActionKind string

const (
	ActionClose   ActionKind = "close"
	ActionComment ActionKind = "comment"
	ActionMerge   ActionKind = "merge"
	ActionSquash  ActionKind = "squash"
)

// Action is one side effect a matched rule requests. Actions carry no
// mutable state; Message is a text/template body resolved against the fact
// set at dispatch time.
type Action struct {
	Kind    ActionKind
	Message string           // comment body or squash commit message template
	Method  host.MergeMethod // merge method, ActionMerge only
}

// Terminal reports whether the action belongs to the mutually exclusive
// class: at most one terminal action executes per evaluation.
func (a Action) Terminal() bool {
	return a.Kind != ActionComment
}

// Rule pairs a name with a condition tree and the actions to take when the
// condition holds.
type Rule struct {
	Name      string
	Condition Node
	Actions   []Action
}

// RuleSet is an ordered sequence of rules. Order is significant: when
// several matching rules propose terminal actions, the first one in
// declaration order wins. A RuleSet is immutable after construction and is
// replaced wholesale on configuration reload.
type RuleSet struct {
	Rules []Rule
}

// NewRuleSet builds a rule set, enforcing name uniqueness and requiring
// every rule to carry a condition and at least one action.
func NewRuleSet(rs []Rule) (*RuleSet, error) {
	seen := make(map[string]struct{}, len(rs))
	for _, r := range rs {
		if r.Name == "" {
			return nil, fmt.Errorf("rule without a name")
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("duplicate rule name %q", r.Name)
		}
		seen[r.Name] = struct{}{}
		if r.Condition == nil {
			return nil, &EvaluationError{Rule: r.Name, Err: fmt.Errorf("missing condition")}
		}
		if len(r.Actions) == 0 {
			return nil, fmt.Errorf("rule %q has no actions", r.Name)
		}
	}
	return &RuleSet{Rules: rs}, nil
}

// EvaluationError reports a malformed rule. One malformed rule never blocks
// the rest of the rule set: callers skip the rule, log, and continue.
type EvaluationError struct {
	Rule string
	Err  error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("rule %q: %v", e.Rule, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }
