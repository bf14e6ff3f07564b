package tailer

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stellar/go/support/log"
	"github.com/stretchr/testify/require"

	"github.com/stellar/ledger-events-api/internal/backfill"
	"github.com/stellar/ledger-events-api/internal/store"
)

type stubFetcher struct {
	notFound map[uint32]bool
	events   map[uint32][]store.StoredEvent
}

func (f stubFetcher) FetchLedger(_ context.Context, seq uint32) ([]store.StoredEvent, error) {
	if f.notFound[seq] {
		return nil, backfill.ErrLedgerNotFound
	}
	return f.events[seq], nil
}

func newBackoffPolicy() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = 60 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func TestResolveStartPrefersExplicit(t *testing.T) {
	s := store.New(log.DefaultLogger, 3600)
	tl := New(log.DefaultLogger, s, stubFetcher{}, nil, 4)

	seq := uint32(999)
	got := tl.resolveStart(context.Background(), &seq)
	require.EqualValues(t, 999, got)
}

func TestResolveStartResumesFromSyncState(t *testing.T) {
	s := store.New(log.DefaultLogger, 3600)
	s.SetSyncState(syncStateKey, "500")
	tl := New(log.DefaultLogger, s, stubFetcher{}, nil, 4)

	got := tl.resolveStart(context.Background(), nil)
	require.EqualValues(t, 501, got)
}

func TestResolveStartUsesDiscovererThenFallback(t *testing.T) {
	s := store.New(log.DefaultLogger, 3600)
	discoverer := DiscovererFunc(func(context.Context) (uint32, bool) { return 1000, true })
	tl := New(log.DefaultLogger, s, stubFetcher{}, discoverer, 4)

	got := tl.resolveStart(context.Background(), nil)
	require.EqualValues(t, 990, got)

	tl2 := New(log.DefaultLogger, s, stubFetcher{}, nil, 4)
	got2 := tl2.resolveStart(context.Background(), nil)
	require.EqualValues(t, fallbackStartLedger, got2)
}

func TestSyncBatchAdvancesAndStopsAtNotFound(t *testing.T) {
	s := store.New(log.DefaultLogger, 3600)
	fetcher := stubFetcher{
		notFound: map[uint32]bool{103: true},
		events: map[uint32][]store.StoredEvent{
			100: {{InternalID: "evt_0000000100_1_0000_0_0000", LedgerSequence: 100}},
			101: {{InternalID: "evt_0000000101_1_0000_0_0000", LedgerSequence: 101}},
			102: {{InternalID: "evt_0000000102_1_0000_0_0000", LedgerSequence: 102}},
		},
	}
	tl := New(log.DefaultLogger, s, fetcher, nil, 4)

	advanced, sleepFor := tl.syncBatch(context.Background(), 100, newBackoffPolicy())
	require.EqualValues(t, 3, advanced)
	require.Equal(t, pollInterval, sleepFor)
	require.Equal(t, 3, s.CachedLedgerCount())

	last, ok := s.GetSyncState(syncStateKey)
	require.True(t, ok)
	require.Equal(t, "102", last)
}

func TestSyncBatchBacksOffOnError(t *testing.T) {
	s := store.New(log.DefaultLogger, 3600)
	fetcher := stubFetcher{
		events: map[uint32][]store.StoredEvent{},
	}
	tl := New(log.DefaultLogger, s, fetcher, nil, 1)
	// fetcher returns no error and no events for seq 200 by default map lookup,
	// so swap in a fetcher that returns a transport-style error for every ledger.
	errFetcher := errFetcherType{err: context.DeadlineExceeded}
	tl.fetcher = errFetcher

	advanced, sleepFor := tl.syncBatch(context.Background(), 200, newBackoffPolicy())
	require.EqualValues(t, 0, advanced)
	require.Greater(t, sleepFor, time.Duration(0))
}

type errFetcherType struct{ err error }

func (f errFetcherType) FetchLedger(context.Context, uint32) ([]store.StoredEvent, error) {
	return nil, f.err
}

func TestIsCachedReflectsStore(t *testing.T) {
	s := store.New(log.DefaultLogger, 3600)
	tl := New(log.DefaultLogger, s, stubFetcher{}, nil, 4)

	require.False(t, tl.isCached(50))
	s.RecordLedgerCached(50)
	require.True(t, tl.isCached(50))
}
