// Package rules holds the rule model: boolean condition trees over
// pull-request attributes, the actions a rule triggers, and the matching
// and conflict-resolution passes that turn a fact set into a decision.
package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mergewarden/mergewarden/internal/core/facts"
)

// Op is a predicate comparison operator.
type Op string

const (
	OpEq Op = "="
	OpNe Op = "!="
	OpGe Op = ">="
)

// Node is one node of a condition tree. Eval is pure: the same (node,
// facts) pair always yields the same result, and evaluation never errors.
type Node interface {
	Eval(f *facts.FactSet) bool
	String() string
}

// And evaluates true when every child is true. An empty And is true.
// Evaluation short-circuits on the first false child, left to right.
type And struct {
	Children []Node
}

func (a *And) Eval(f *facts.FactSet) bool {
	for _, c := range a.Children {
		if !c.Eval(f) {
			return false
		}
	}
	return true
}

func (a *And) String() string { return combinatorString("and", a.Children) }

// Or evaluates true when any child is true. An empty Or is false.
// Evaluation short-circuits on the first true child, left to right.
type Or struct {
	Children []Node
}

func (o *Or) Eval(f *facts.FactSet) bool {
	for _, c := range o.Children {
		if c.Eval(f) {
			return true
		}
	}
	return false
}

func (o *Or) String() string { return combinatorString("or", o.Children) }

// Not negates its single child.
type Not struct {
	Child Node
}

func (n *Not) Eval(f *facts.FactSet) bool { return !n.Child.Eval(f) }

func (n *Not) String() string { return fmt.Sprintf("not(%s)", n.Child) }

// Predicate is an atomic comparison of one attribute against an expected
// value. A predicate over an attribute absent from the fact set evaluates
// to false, never to an error: a rule referencing a check that has not yet
// reported must not match.
type Predicate struct {
	Attr   string
	Op     Op
	Value  string
	Number int // parsed expected value for OpGe
}

func (p *Predicate) Eval(f *facts.FactSet) bool {
	v, ok := f.Lookup(p.Attr)
	if !ok {
		return false
	}
	switch p.Op {
	case OpEq:
		return valueMatches(v, p.Value)
	case OpNe:
		return !valueMatches(v, p.Value)
	case OpGe:
		// Numeric comparison over a non-integer attribute is false, not
		// an error.
		if v.Kind != facts.KindInt {
			return false
		}
		return v.Int >= p.Number
	}
	return false
}

func (p *Predicate) String() string {
	return p.Attr + string(p.Op) + p.Value
}

// valueMatches compares an attribute value against the expected string.
// String comparison is exact and case-sensitive; for set-valued attributes
// equality means membership.
func valueMatches(v facts.Value, want string) bool {
	switch v.Kind {
	case facts.KindString:
		return v.Str == want
	case facts.KindSet:
		_, ok := v.Set[want]
		return ok
	case facts.KindBool:
		return strconv.FormatBool(v.Bool) == want
	case facts.KindInt:
		n, err := strconv.Atoi(want)
		return err == nil && v.Int == n
	}
	return false
}

func combinatorString(name string, children []Node) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}
