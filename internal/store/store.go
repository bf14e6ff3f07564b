package store

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/stellar/go/support/log"
)

// EventStore is the partitioned in-memory event cache. One EventStore lives
// per process, composed behind the application state passed to every HTTP
// handler; there is no static mutable state.
type EventStore struct {
	log             *log.Entry
	cacheTTLSeconds int64

	mu      sync.RWMutex
	ledgers map[uint32]*LedgerPartition

	latestLedger atomic.Uint32

	syncMu    sync.RWMutex
	syncState map[string]string
}

// New constructs an empty EventStore. cacheTTLSeconds is applied to every
// partition at insert time.
func New(logger *log.Entry, cacheTTLSeconds int64) *EventStore {
	return &EventStore{
		log:             logger,
		cacheTTLSeconds: cacheTTLSeconds,
		ledgers:         make(map[uint32]*LedgerPartition),
		syncState:       make(map[string]string),
	}
}

// InsertEvents groups events by ledger sequence and installs one partition
// per ledger not already cached. Inserting for a ledger that is already
// present is a no-op: idempotent by construction.
func (s *EventStore) InsertEvents(events []StoredEvent) {
	if len(events) == 0 {
		return
	}
	byLedger := make(map[uint32][]StoredEvent)
	for _, e := range events {
		byLedger[e.LedgerSequence] = append(byLedger[e.LedgerSequence], e)
	}

	now := time.Now().Unix()
	expiresAt := now + s.cacheTTLSeconds

	s.mu.Lock()
	var maxLedger uint32
	for seq, evs := range byLedger {
		if _, exists := s.ledgers[seq]; exists {
			continue
		}
		s.ledgers[seq] = newPartition(evs, expiresAt)
		if seq > maxLedger {
			maxLedger = seq
		}
	}
	s.mu.Unlock()

	s.bumpLatest(maxLedger)
}

// RecordLedgerCached installs an empty partition for seq if absent, marking
// an empty ledger as cached without any events. It is a no-op if seq is
// already present.
func (s *EventStore) RecordLedgerCached(seq uint32) {
	now := time.Now().Unix()
	expiresAt := now + s.cacheTTLSeconds

	s.mu.Lock()
	if _, exists := s.ledgers[seq]; !exists {
		s.ledgers[seq] = newPartition(nil, expiresAt)
	}
	s.mu.Unlock()

	s.bumpLatest(seq)
}

func (s *EventStore) bumpLatest(seq uint32) {
	for {
		cur := s.latestLedger.Load()
		if seq <= cur {
			return
		}
		if s.latestLedger.CompareAndSwap(cur, seq) {
			return
		}
	}
}

// FindUncachedLedgers returns the subset of [start, start+count) whose
// partition is absent or expired as of now.
func (s *EventStore) FindUncachedLedgers(start, count uint32, now time.Time) []uint32 {
	nowUnix := now.Unix()
	var missing []uint32

	s.mu.RLock()
	defer s.mu.RUnlock()
	for seq := start; seq < start+count; seq++ {
		p, ok := s.ledgers[seq]
		if !ok || p.expired(nowUnix) {
			missing = append(missing, seq)
		}
	}
	return missing
}

// LatestLedgerSequence returns the highest installed ledger sequence, or
// ok=false if the store is empty. After CleanupExpired removes partitions it
// is the highest remaining sequence, so it can go down.
func (s *EventStore) LatestLedgerSequence() (seq uint32, ok bool) {
	seq = s.latestLedger.Load()
	return seq, seq > 0
}

// EarliestLedgerSequence scans cached keys for the minimum, or ok=false if
// the store is empty. Supplements spec.md's EventStore with the analogue of
// LatestLedgerSequence that /health also reports.
func (s *EventStore) EarliestLedgerSequence() (seq uint32, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k := range s.ledgers {
		if !ok || k < seq {
			seq, ok = k, true
		}
	}
	return seq, ok
}

// CachedLedgerCount returns the current map size. An approximate value
// under concurrent mutation is acceptable.
func (s *EventStore) CachedLedgerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ledgers)
}

// partition returns a shared handle to the partition for seq, if present.
// The caller does not need to hold any lock to read the returned handle:
// partitions are immutable after publication.
func (s *EventStore) partition(seq uint32) (*LedgerPartition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.ledgers[seq]
	return p, ok
}

// GetEvent looks up a single event by ledger sequence and internal id.
func (s *EventStore) GetEvent(seq uint32, internalID string) (StoredEvent, bool) {
	p, ok := s.partition(seq)
	if !ok {
		return StoredEvent{}, false
	}
	return p.eventByID(internalID)
}

// CleanupExpired removes every partition whose TTL has passed as of now,
// recomputes the latest-ledger tracker over what remains, and returns the
// number of partitions removed.
func (s *EventStore) CleanupExpired(now time.Time) int {
	nowUnix := now.Unix()

	s.mu.Lock()
	removed := 0
	var maxRemaining uint32
	for seq, p := range s.ledgers {
		if p.expired(nowUnix) {
			delete(s.ledgers, seq)
			removed++
			continue
		}
		if seq > maxRemaining {
			maxRemaining = seq
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.latestLedger.Store(maxRemaining)
	}
	return removed
}

// SetSyncState records a key/value pair used externally to persist
// last-synced-ledger progress within this process's lifetime. It is not
// persisted across restarts.
func (s *EventStore) SetSyncState(key, value string) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	s.syncState[key] = value
}

// GetSyncState retrieves a previously recorded sync-state value.
func (s *EventStore) GetSyncState(key string) (string, bool) {
	s.syncMu.RLock()
	defer s.syncMu.RUnlock()
	v, ok := s.syncState[key]
	return v, ok
}
