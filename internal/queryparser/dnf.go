package queryparser

// toDNF converts an AST into disjunctive normal form (OR of ANDs) by
// distributing AND over OR. Qualifiers pass through unchanged; Or nodes
// normalize their children; And nodes normalize their children first, then
// distribute.
func toDNF(e expr) expr {
	switch {
	case e.isQualifier:
		return e
	case e.isOr:
		normalized := make([]expr, len(e.kids))
		for i, k := range e.kids {
			normalized[i] = toDNF(k)
		}
		return orExpr(normalized)
	case e.isAnd:
		normalized := make([]expr, len(e.kids))
		for i, k := range e.kids {
			normalized[i] = toDNF(k)
		}
		return distributeAnd(normalized)
	default:
		return e
	}
}

// distributeAnd takes a list of AND'd children (already DNF-normalized) and
// distributes AND over any OR children via a cartesian product, returning a
// single DNF expression.
func distributeAnd(children []expr) expr {
	conjunctions := [][]expr{{}}

	for _, child := range children {
		switch {
		case child.isOr:
			var next [][]expr
			for _, existing := range conjunctions {
				for _, branch := range child.kids {
					extended := append([]expr{}, existing...)
					if branch.isAnd {
						extended = append(extended, branch.kids...)
					} else {
						extended = append(extended, branch)
					}
					next = append(next, extended)
				}
			}
			conjunctions = next
		case child.isAnd:
			for i := range conjunctions {
				conjunctions[i] = append(conjunctions[i], child.kids...)
			}
		default:
			for i := range conjunctions {
				conjunctions[i] = append(conjunctions[i], child)
			}
		}
	}

	if len(conjunctions) == 1 {
		return wrapConjunction(conjunctions[0])
	}
	wrapped := make([]expr, len(conjunctions))
	for i, conj := range conjunctions {
		wrapped[i] = wrapConjunction(conj)
	}
	return orExpr(wrapped)
}

func wrapConjunction(conj []expr) expr {
	if len(conj) == 1 {
		return conj[0]
	}
	return andExpr(conj)
}

// qualifierTuple is a flattened (key, value, position) triple, the leaf
// unit that and-groups are built from.
type qualifierTuple struct {
	key      string
	value    string
	position int
}

// flattenOr flattens a DNF expression into its list of AND-groups, each a
// slice of qualifier tuples.
func flattenOr(e expr) [][]qualifierTuple {
	switch {
	case e.isQualifier:
		return [][]qualifierTuple{{{key: e.key, value: e.value, position: e.position}}}
	case e.isAnd:
		group := make([]qualifierTuple, 0, len(e.kids))
		for _, k := range e.kids {
			group = append(group, qualifierTuple{key: k.key, value: k.value, position: k.position})
		}
		return [][]qualifierTuple{group}
	case e.isOr:
		var groups [][]qualifierTuple
		for _, k := range e.kids {
			groups = append(groups, flattenOr(k)...)
		}
		return groups
	default:
		return nil
	}
}
