package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseConditions builds a condition tree from the raw YAML shape of a
// rule's conditions list: each item is either an atomic predicate string
// or a single-key map nesting "and"/"or"/"not". The listed conditions are
// combined under an implicit top-level and.
func ParseConditions(items []any) (Node, error) {
	children := make([]Node, 0, len(items))
	for i, item := range items {
		node, err := parseItem(item)
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", i+1, err)
		}
		children = append(children, node)
	}
	return &And{Children: children}, nil
}

func parseItem(item any) (Node, error) {
	switch v := item.(type) {
	case string:
		return ParsePredicate(v)
	case map[string]any:
		if len(v) != 1 {
			return nil, fmt.Errorf("combinator must have exactly one key, got %d", len(v))
		}
		for key, raw := range v {
			return parseCombinator(key, raw)
		}
	}
	return nil, fmt.Errorf("condition must be a predicate string or an and/or/not block, got %T", item)
}

func parseCombinator(key string, raw any) (Node, error) {
	switch key {
	case "and", "or":
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("%q expects a list of conditions, got %T", key, raw)
		}
		children := make([]Node, 0, len(items))
		for i, item := range items {
			node, err := parseItem(item)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
			}
			children = append(children, node)
		}
		if key == "and" {
			return &And{Children: children}, nil
		}
		return &Or{Children: children}, nil
	case "not":
		// not accepts a single condition or a list (treated as and).
		if items, ok := raw.([]any); ok {
			child, err := ParseConditions(items)
			if err != nil {
				return nil, fmt.Errorf("not: %w", err)
			}
			return &Not{Child: child}, nil
		}
		child, err := parseItem(raw)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		return &Not{Child: child}, nil
	}
	return nil, fmt.Errorf("unknown combinator %q (want and, or, not)", key)
}

// ParsePredicate parses an atomic predicate string such as "base=stable",
// "author!=bot", "#approved-reviews-by>=1" or "status-success=ci/circleci".
// A leading "-" negates the predicate.
func ParsePredicate(s string) (Node, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return nil, fmt.Errorf("empty predicate")
	}

	negate := false
	if strings.HasPrefix(raw, "-") {
		negate = true
		raw = strings.TrimSpace(raw[1:])
	}

	attr, op, value, err := splitPredicate(raw)
	if err != nil {
		return nil, err
	}

	p := &Predicate{Attr: attr, Op: op, Value: value}
	if op == OpGe {
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("predicate %q: %q is not an integer", raw, value)
		}
		p.Number = n
	}

	if negate {
		return &Not{Child: p}, nil
	}
	return p, nil
}

// splitPredicate finds the first operator occurrence. "!=" and ">=" are
// matched before bare "=" so "a!=b" does not parse as attribute "a!".
func splitPredicate(s string) (attr string, op Op, value string, err error) {
	for i := 0; i < len(s); i++ {
		var found Op
		switch {
		case strings.HasPrefix(s[i:], string(OpNe)):
			found = OpNe
		case strings.HasPrefix(s[i:], string(OpGe)):
			found = OpGe
		case s[i] == '=':
			found = OpEq
		default:
			continue
		}
		attr = strings.TrimSpace(s[:i])
		value = strings.TrimSpace(s[i+len(found):])
		if attr == "" {
			return "", "", "", fmt.Errorf("predicate %q: missing attribute name", s)
		}
		if value == "" {
			return "", "", "", fmt.Errorf("predicate %q: missing expected value", s)
		}
		return attr, found, value, nil
	}
	return "", "", "", fmt.Errorf("predicate %q: no operator (want =, != or >=)", s)
}
