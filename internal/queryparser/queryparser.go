package queryparser

import (
	"strings"

	"github.com/stellar/ledger-events-api/internal/store"
)

// Parse compiles a "q" query string into a list of store.EventFilter. An
// empty result list never happens on success: a successful parse always
// yields at least one filter (the empty query itself is rejected).
func Parse(input string) ([]store.EventFilter, error) {
	if len(input) > MaxQueryLength {
		return nil, errf(QueryTooLong, 0, "query exceeds maximum length of %d bytes", MaxQueryLength)
	}
	if strings.TrimSpace(input) == "" {
		return nil, errf(EmptyQuery, 0, "query is empty")
	}

	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, errf(EmptyQuery, 0, "query is empty")
	}

	termCount := 0
	for _, t := range tokens {
		if t.kind == tokQualifier {
			termCount++
		}
	}
	if termCount > MaxQueryTerms {
		return nil, errf(TooManyTerms, 0, "query exceeds maximum of %d terms", MaxQueryTerms)
	}

	p := newParser(tokens)
	tree, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		return nil, errf(UnexpectedToken, tok.position, "unexpected token '%s'", tok.text)
	}

	dnf := toDNF(tree)
	andGroups := flattenOr(dnf)

	if len(andGroups) > MaxFilters {
		return nil, errf(TooManyFilters, 0, "query expands to %d filters, maximum is %d", len(andGroups), MaxFilters)
	}

	filters := make([]store.EventFilter, 0, len(andGroups))
	for _, group := range andGroups {
		f, err := andGroupToFilter(group)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}

	return filters, nil
}
