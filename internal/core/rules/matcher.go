package rules

import (
	"log"

	"github.com/mergewarden/mergewarden/internal/core/facts"
)

// Match records that one rule's condition held for a fact set.
type Match struct {
	Rule *Rule
}

// Match evaluates every rule in declaration order and returns all matches.
// It never stops at the first match: independent rules (a close rule and a
// merge rule, say) can both match and must both reach the conflict
// resolver. A rule with a nil condition is skipped and logged, never fatal.
func (rs *RuleSet) Match(f *facts.FactSet) []Match {
	var matches []Match
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.Condition == nil {
			log.Printf("[rule_matcher] skipping rule %q: no condition", r.Name)
			continue
		}
		if r.Condition.Eval(f) {
			matches = append(matches, Match{Rule: r})
		}
	}
	return matches
}

// PlannedComment is a comment action that will be dispatched.
type PlannedComment struct {
	RuleName string
	Template string
}

// PlannedTerminal is the single terminal action that won conflict
// resolution.
type PlannedTerminal struct {
	RuleName string
	Action   Action
}

// SuppressedAction is a terminal action that lost conflict resolution. It
// is logged, not executed.
type SuppressedAction struct {
	RuleName string
	Action   Action
}

// Decision is the resolved outcome of one evaluation: every matched
// comment, at most one terminal action, and the terminal actions that were
// suppressed by declaration-order precedence.
type Decision struct {
	Comments   []PlannedComment
	Terminal   *PlannedTerminal
	Suppressed []SuppressedAction
}

// Empty reports whether the decision requires no dispatch at all. Silence
// is the expected common case.
func (d *Decision) Empty() bool {
	return len(d.Comments) == 0 && d.Terminal == nil
}

// Resolve partitions the actions of the matching rules into the
// non-exclusive comment class and the mutually exclusive terminal class
// {close, merge, squash}. The first matching rule in declaration order that
// proposes a terminal action wins; later terminal proposals are suppressed.
// All matched comments are kept regardless of which terminal action won.
func Resolve(matches []Match) Decision {
	var d Decision
	for _, m := range matches {
		for _, a := range m.Rule.Actions {
			if !a.Terminal() {
				d.Comments = append(d.Comments, PlannedComment{
					RuleName: m.Rule.Name,
					Template: a.Message,
				})
				continue
			}
			if d.Terminal == nil {
				d.Terminal = &PlannedTerminal{RuleName: m.Rule.Name, Action: a}
			} else {
				d.Suppressed = append(d.Suppressed, SuppressedAction{
					RuleName: m.Rule.Name,
					Action:   a,
				})
			}
		}
	}
	return d
}
