package store

import "sort"

// LedgerPartition holds every event for a single ledger. It is immutable
// after construction: replacing its contents means removing the map entry
// and inserting a new partition, never mutating one in place. That is what
// lets concurrent readers hold a handle without any locking.
type LedgerPartition struct {
	events    []StoredEvent // strictly increasing by InternalID
	expiresAt int64         // unix seconds
}

// newPartition sorts events by InternalID and wraps them with an expiry.
func newPartition(events []StoredEvent, expiresAt int64) *LedgerPartition {
	sort.Slice(events, func(i, j int) bool {
		return events[i].InternalID < events[j].InternalID
	})
	return &LedgerPartition{events: events, expiresAt: expiresAt}
}

// Len returns the number of events in the partition.
func (p *LedgerPartition) Len() int {
	if p == nil {
		return 0
	}
	return len(p.events)
}

// expired reports whether the partition's TTL has passed as of now.
func (p *LedgerPartition) expired(now int64) bool {
	return p.expiresAt <= now
}

// indexAfter returns the index of the first event whose InternalID is
// strictly greater than cursor. If cursor is "", it returns 0.
func (p *LedgerPartition) indexAfter(cursor string) int {
	if cursor == "" {
		return 0
	}
	return sort.Search(len(p.events), func(i int) bool {
		return p.events[i].InternalID > cursor
	})
}

// indexBefore returns the index one past the last event whose InternalID is
// strictly less than cursor. If cursor is "", it returns len(events).
func (p *LedgerPartition) indexBefore(cursor string) int {
	if cursor == "" {
		return len(p.events)
	}
	return sort.Search(len(p.events), func(i int) bool {
		return p.events[i].InternalID >= cursor
	})
}

// eventByID binary searches for the event with the given InternalID.
func (p *LedgerPartition) eventByID(internalID string) (StoredEvent, bool) {
	i := sort.Search(len(p.events), func(i int) bool {
		return p.events[i].InternalID >= internalID
	})
	if i < len(p.events) && p.events[i].InternalID == internalID {
		return p.events[i], true
	}
	return StoredEvent{}, false
}
