// Package facts builds and exposes the normalized fact set a pull request
// is evaluated against. A FactSet is an immutable snapshot: it is created
// once per incoming event and never mutated mid-evaluation.
package facts

import "fmt"

// Kind discriminates the value types an attribute can hold.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindSet
	KindBool
)

// Value is one attribute value. Exactly one field (per Kind) is meaningful.
type Value struct {
	Kind Kind
	Str  string
	Int  int
	Set  map[string]struct{}
	Bool bool
}

// StringValue returns a string-kinded Value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// IntValue returns an integer-kinded Value.
func IntValue(n int) Value { return Value{Kind: KindInt, Int: n} }

// SetValue returns a set-kinded Value built from the given members.
func SetValue(members []string) Value {
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	return Value{Kind: KindSet, Set: set}
}

// BoolValue returns a boolean-kinded Value.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// FactSet is the attribute snapshot for one pull request at one point in
// time. Identity fields are kept alongside the attribute map because the
// dispatcher and comment templates need them directly.
type FactSet struct {
	Repo    string
	Number  int
	Title   string
	Body    string
	Author  string
	HeadSHA string
	State   string // "open", "closed" or "merged"

	attrs map[string]Value
}

// Lookup returns the value of the named attribute. The second return is
// false when the attribute is unknown; predicates over unknown attributes
// evaluate to false, never to an error.
func (f *FactSet) Lookup(name string) (Value, bool) {
	v, ok := f.attrs[name]
	return v, ok
}

// Attributes returns the attribute names present in the fact set, for
// diagnostics.
func (f *FactSet) Attributes() []string {
	names := make([]string, 0, len(f.attrs))
	for name := range f.attrs {
		names = append(names, name)
	}
	return names
}

// TemplateData is the field set comment and commit-message templates may
// reference.
type TemplateData struct {
	Author string
	Title  string
	Number int
	Body   string
}

// TemplateData extracts the template-visible fields from the fact set.
func (f *FactSet) TemplateData() TemplateData {
	return TemplateData{
		Author: f.Author,
		Title:  f.Title,
		Number: f.Number,
		Body:   f.Body,
	}
}

// ResolutionError reports a malformed or incomplete event or snapshot.
// Events failing resolution are dropped, not retried.
type ResolutionError struct {
	Field  string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve attributes: %s: %s", e.Field, e.Reason)
}
