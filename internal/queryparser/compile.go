package queryparser

import (
	"encoding/json"
	"strconv"

	"github.com/stellar/ledger-events-api/internal/store"
)

var validEventTypes = map[string]bool{"contract": true, "system": true, "diagnostic": true}

type setValue struct {
	value    string
	position int
	set      bool
}

// andGroupToFilter merges one AND-group of qualifier tuples into a single
// store.EventFilter, applying the per-key merge rules: singleton keys
// collapse on duplicate-same-value and conflict on duplicate-different-value;
// topicN is a singleton per position; topic (any-position) collects,
// dedupes, and preserves order into AnyTopics.
func andGroupToFilter(group []qualifierTuple) (store.EventFilter, error) {
	var eventType, contractID, tx setValue
	var ledger struct {
		value    uint32
		position int
		set      bool
	}
	var topics [4]setValue
	var anyTopics []string
	seenAnyTopics := map[string]bool{}

	for _, t := range group {
		switch t.key {
		case "topic":
			var js interface{}
			if err := json.Unmarshal([]byte(t.value), &js); err != nil {
				return store.EventFilter{}, errf(InvalidValue, t.position, "invalid JSON value for 'topic': %s", t.value)
			}
			if !seenAnyTopics[t.value] {
				seenAnyTopics[t.value] = true
				anyTopics = append(anyTopics, t.value)
			}

		case "type":
			if !validEventTypes[t.value] {
				return store.EventFilter{}, errf(InvalidValue, t.position,
					"invalid value '%s' for key 'type' (expected: contract, system, diagnostic)", t.value)
			}
			if err := mergeSingleton(&eventType, t.value, t.position, "type"); err != nil {
				return store.EventFilter{}, err
			}

		case "contract":
			if err := mergeSingleton(&contractID, t.value, t.position, "contract"); err != nil {
				return store.EventFilter{}, err
			}

		case "ledger":
			parsed, err := strconv.ParseUint(t.value, 10, 32)
			if err != nil {
				return store.EventFilter{}, errf(InvalidValue, t.position,
					"invalid value '%s' for key 'ledger' (expected a positive integer)", t.value)
			}
			if ledger.set {
				if ledger.value == uint32(parsed) {
					continue
				}
				return store.EventFilter{}, errf(ConflictingQualifiers, t.position,
					"conflicting values for 'ledger': '%d' and '%d' (use OR to match multiple ledgers)", ledger.value, parsed)
			}
			ledger.value, ledger.position, ledger.set = uint32(parsed), t.position, true

		case "tx":
			if err := mergeSingleton(&tx, t.value, t.position, "tx"); err != nil {
				return store.EventFilter{}, err
			}

		case "topic0", "topic1", "topic2", "topic3":
			idx := int(t.key[5] - '0')
			var js interface{}
			if err := json.Unmarshal([]byte(t.value), &js); err != nil {
				return store.EventFilter{}, errf(InvalidValue, t.position, "invalid JSON value for '%s': %s", t.key, t.value)
			}
			if topics[idx].set {
				if topics[idx].value == t.value {
					continue
				}
				return store.EventFilter{}, errf(DuplicateTopicPosition, t.position,
					"duplicate '%s' in one filter group (use OR to match multiple values)", t.key)
			}
			topics[idx] = setValue{value: t.value, position: t.position, set: true}
		}
	}

	if tx.set && !ledger.set {
		return store.EventFilter{}, errf(InvalidValue, tx.position, "ledger is required when tx is provided")
	}

	filter := store.EventFilter{
		EventType:  eventType.value,
		ContractID: contractID.value,
		Tx:         tx.value,
	}
	if ledger.set {
		seq := ledger.value
		filter.Ledger = &seq
	}

	maxIdx := -1
	for i, tp := range topics {
		if tp.set {
			maxIdx = i
		}
	}
	if maxIdx >= 0 {
		positional := make([]interface{}, maxIdx+1)
		for i := 0; i <= maxIdx; i++ {
			if !topics[i].set {
				positional[i] = store.Wildcard
				continue
			}
			var js interface{}
			_ = json.Unmarshal([]byte(topics[i].value), &js)
			positional[i] = js
		}
		filter.Topics = positional
	}

	if len(anyTopics) > 0 {
		any := make([]interface{}, len(anyTopics))
		for i, raw := range anyTopics {
			var js interface{}
			_ = json.Unmarshal([]byte(raw), &js)
			any[i] = js
		}
		filter.AnyTopics = any
	}

	return filter, nil
}

func mergeSingleton(sv *setValue, value string, position int, key string) error {
	if sv.set {
		if sv.value == value {
			return nil
		}
		return errf(ConflictingQualifiers, position,
			"conflicting values for '%s': '%s' and '%s' (use OR to match multiple %ss)", key, sv.value, value, key)
	}
	sv.value, sv.position, sv.set = value, position, true
	return nil
}
