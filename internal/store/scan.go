package store

// ScanLedgerForward starts at the position strictly after cursor (or the
// start of the partition if cursor is ""), iterates ascending, appends
// matches to acc until remaining reaches 0 or the partition is exhausted,
// and reports the external id of the last event it examined (matched or
// not). examined is false if the ledger has no events past the cursor.
func (s *EventStore) ScanLedgerForward(
	seq uint32,
	cursor string,
	filters []EventFilter,
	acc *[]StoredEvent,
	remaining *int,
) (lastExaminedExternalID string, examined bool) {
	p, ok := s.partition(seq)
	if !ok {
		return "", false
	}
	start := p.indexAfter(cursor)
	for i := start; i < len(p.events) && *remaining > 0; i++ {
		event := p.events[i]
		lastExaminedExternalID = event.ExternalID
		examined = true
		if MatchesAny(filters, event) {
			*acc = append(*acc, event)
			*remaining--
		}
	}
	return lastExaminedExternalID, examined
}

// ScanLedgerBackward starts at the position strictly before cursor (or the
// end of the partition if cursor is ""), iterates descending, appends
// matches to acc until remaining reaches 0 or the partition is exhausted,
// and reports the external id of the last event it examined.
func (s *EventStore) ScanLedgerBackward(
	seq uint32,
	cursor string,
	filters []EventFilter,
	acc *[]StoredEvent,
	remaining *int,
) (lastExaminedExternalID string, examined bool) {
	p, ok := s.partition(seq)
	if !ok {
		return "", false
	}
	end := p.indexBefore(cursor)
	for i := end - 1; i >= 0 && *remaining > 0; i-- {
		event := p.events[i]
		lastExaminedExternalID = event.ExternalID
		examined = true
		if MatchesAny(filters, event) {
			*acc = append(*acc, event)
			*remaining--
		}
	}
	return lastExaminedExternalID, examined
}
