package rules

// Predicates returns every atomic predicate of a condition tree, left to
// right. Used by validation to warn about unknown attribute names.
func Predicates(n Node) []*Predicate {
	var out []*Predicate
	collect(n, &out)
	return out
}

func collect(n Node, out *[]*Predicate) {
	switch v := n.(type) {
	case *Predicate:
		*out = append(*out, v)
	case *And:
		for _, c := range v.Children {
			collect(c, out)
		}
	case *Or:
		for _, c := range v.Children {
			collect(c, out)
		}
	case *Not:
		collect(v.Child, out)
	}
}
