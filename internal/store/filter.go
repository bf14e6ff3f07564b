package store

import "reflect"

// EventFilter is the runtime, already-compiled form of one conjunction out
// of a query's filter list (see internal/queryparser for how "q" compiles
// down to a list of these). An empty filter list at the call site means "no
// constraint"; multiple filters in a list are OR'd.
type EventFilter struct {
	EventType string // "" means unconstrained
	ContractID string
	// Topics holds positional matchers: Topics[i] is either a concrete JSON
	// value to match at position i, or Wildcard to match anything there.
	Topics []interface{}
	// AnyTopics holds values that must each appear somewhere in the event's
	// topics, regardless of position.
	AnyTopics []interface{}
	Ledger    *uint32 // routing only, not itself a runtime predicate
	Tx        string
}

// Matches reports whether a single event satisfies every predicate this
// filter sets. All set fields are ANDed together.
func (f EventFilter) Matches(event StoredEvent) bool {
	if f.EventType != "" && f.EventType != event.EventType {
		return false
	}
	if f.ContractID != "" && f.ContractID != event.ContractID {
		return false
	}
	if f.Tx != "" && f.Tx != event.TxHash {
		return false
	}
	if len(f.Topics) > 0 {
		if len(event.Topics) < len(f.Topics) {
			return false
		}
		for i, want := range f.Topics {
			if want == Wildcard {
				continue
			}
			if !reflect.DeepEqual(want, event.Topics[i]) {
				return false
			}
		}
	}
	for _, want := range f.AnyTopics {
		found := false
		for _, have := range event.Topics {
			if reflect.DeepEqual(want, have) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// MatchesAny reports whether event satisfies at least one filter in the
// list, or true unconditionally if the list is empty.
func MatchesAny(filters []EventFilter, event StoredEvent) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.Matches(event) {
			return true
		}
	}
	return false
}
