package backfill

import (
	"context"
	"testing"

	"github.com/stellar/go/support/log"
	"github.com/stretchr/testify/require"

	"github.com/stellar/ledger-events-api/internal/store"
)

type stubFetcher struct {
	notFound map[uint32]bool
	events   map[uint32][]store.StoredEvent
	calls    map[uint32]int
}

func (f *stubFetcher) FetchLedger(_ context.Context, seq uint32) ([]store.StoredEvent, error) {
	f.calls[seq]++
	if f.notFound[seq] {
		return nil, ErrLedgerNotFound
	}
	return f.events[seq], nil
}

func TestBackfillLedgerInsertsAndCaches(t *testing.T) {
	s := store.New(log.DefaultLogger, 3600)
	fetcher := &stubFetcher{
		notFound: map[uint32]bool{},
		events: map[uint32][]store.StoredEvent{
			100: {{InternalID: "evt_0000000100_1_0000_0_0000", LedgerSequence: 100}},
		},
		calls: map[uint32]int{},
	}
	o := New(log.DefaultLogger, s, fetcher, 4)

	o.BackfillLedger(context.Background(), 100)

	_, ok := s.GetEvent(100, "evt_0000000100_1_0000_0_0000")
	require.True(t, ok)
}

func TestBackfillLedgerToleratesNotFound(t *testing.T) {
	s := store.New(log.DefaultLogger, 3600)
	fetcher := &stubFetcher{notFound: map[uint32]bool{200: true}, events: map[uint32][]store.StoredEvent{}, calls: map[uint32]int{}}
	o := New(log.DefaultLogger, s, fetcher, 4)

	o.BackfillLedger(context.Background(), 200)

	require.Equal(t, 0, s.CachedLedgerCount())
}

func TestBackfillWindowSkipsCachedAndReportsFrontier(t *testing.T) {
	s := store.New(log.DefaultLogger, 3600)
	s.RecordLedgerCached(10) // already cached, should not be re-fetched

	fetcher := &stubFetcher{
		notFound: map[uint32]bool{12: true},
		events: map[uint32][]store.StoredEvent{
			11: {{InternalID: "evt_0000000011_1_0000_0_0000", LedgerSequence: 11}},
		},
		calls: map[uint32]int{},
	}
	o := New(log.DefaultLogger, s, fetcher, 4)

	notFound := o.BackfillWindow(context.Background(), 10, 13)

	require.Equal(t, 0, fetcher.calls[10])
	require.Equal(t, 1, fetcher.calls[11])
	require.Equal(t, 1, fetcher.calls[12])
	require.True(t, notFound[12])
	require.Equal(t, 2, s.CachedLedgerCount())
}

func TestBackfillIfNeededCapsAtBatchSizeAndLatest(t *testing.T) {
	s := store.New(log.DefaultLogger, 3600)
	s.InsertEvents([]store.StoredEvent{{InternalID: "evt_0000000050_1_0000_0_0000", LedgerSequence: 50}})

	fetcher := &stubFetcher{notFound: map[uint32]bool{}, events: map[uint32][]store.StoredEvent{}, calls: map[uint32]int{}}
	o := New(log.DefaultLogger, s, fetcher, 4)

	o.BackfillIfNeeded(context.Background(), 10)

	// latest is 50, so the window [10, 51) should be attempted, not [10,110).
	require.Equal(t, 1, fetcher.calls[49])
	require.Equal(t, 0, fetcher.calls[51])
	require.Equal(t, 0, fetcher.calls[60])
}
