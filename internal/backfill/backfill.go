// Package backfill implements the on-demand backfill orchestrator: fetching
// missing ledger partitions from the remote object store while a query is
// in flight, bounded by a batch size and tolerant of "ledger not found"
// responses (the live chain's frontier, not an error).
package backfill

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stellar/go/support/log"
	"golang.org/x/sync/errgroup"

	"github.com/stellar/ledger-events-api/internal/metrics"
	"github.com/stellar/ledger-events-api/internal/store"
)

// BatchSize bounds how many ledgers a single backfill operation fetches
// concurrently, per spec.md §4.4/§5.
const BatchSize = 100

// ErrLedgerNotFound is the sentinel a Fetcher returns when the remote store
// has no object for the requested ledger sequence yet. It is the "frontier"
// signal, not a fetch failure.
var ErrLedgerNotFound = errors.New("backfill: ledger not found")

// Fetcher is the external collaborator spec.md §6 describes: given a ledger
// sequence, fetch, decompress, and extract its events.
type Fetcher interface {
	FetchLedger(ctx context.Context, ledgerSequence uint32) ([]store.StoredEvent, error)
}

// Orchestrator backfills missing partitions into an EventStore on behalf of
// an in-flight query. Both of its entry points are synchronous: the caller
// suspends until the fetch (or batch of fetches) completes.
type Orchestrator struct {
	log            *log.Entry
	store          *store.EventStore
	fetcher        Fetcher
	maxConcurrency int
	metrics        *metrics.Metrics
}

// New constructs an Orchestrator. parallelFetches bounds concurrent fetches
// within one backfill call; it is typically the CLI's --parallel-fetches.
func New(logger *log.Entry, s *store.EventStore, fetcher Fetcher, parallelFetches int) *Orchestrator {
	if parallelFetches <= 0 {
		parallelFetches = BatchSize
	}
	return &Orchestrator{log: logger, store: s, fetcher: fetcher, maxConcurrency: parallelFetches}
}

// SetMetrics installs the optional metrics handle fetch outcomes and cache
// hit/miss counts are recorded against. A nil handle (the default) disables
// collection.
func (o *Orchestrator) SetMetrics(m *metrics.Metrics) {
	o.metrics = m
}

// BackfillLedger fetches a single ledger unconditionally -- used for
// ledger-pinned queries and point lookups by id. A "not found" response is
// tolerated silently; other errors are logged and swallowed, since a query
// that can't backfill still returns a meaningful (if empty) result.
func (o *Orchestrator) BackfillLedger(ctx context.Context, seq uint32) {
	events, err := o.fetcher.FetchLedger(ctx, seq)
	if err != nil {
		if errors.Is(err, ErrLedgerNotFound) {
			return
		}
		o.log.WithField("ledger", seq).WithError(err).Warn("backfill: failed to fetch ledger")
		return
	}
	o.store.InsertEvents(events)
	o.store.RecordLedgerCached(seq)
}

// BackfillIfNeeded fetches the uncached subset of [target, min(target+BatchSize,
// latest+1)) concurrently and installs each successfully fetched partition.
// If the store is empty (no latest ledger yet), the upper bound is simply
// target+BatchSize.
func (o *Orchestrator) BackfillIfNeeded(ctx context.Context, target uint32) {
	hi := target + BatchSize
	if latest, ok := o.store.LatestLedgerSequence(); ok && target+BatchSize > latest+1 {
		hi = latest + 1
	}
	if hi <= target {
		return
	}
	o.BackfillWindow(ctx, target, hi)
}

// BackfillWindow fetches every uncached ledger in [lo, hi) concurrently,
// bounded by maxConcurrency, and installs the successfully fetched
// partitions. It returns the set of sequences within the window for which
// the fetcher reported ErrLedgerNotFound -- the progressive scan in
// internal/queryengine uses this to detect the chain's live frontier.
func (o *Orchestrator) BackfillWindow(ctx context.Context, lo, hi uint32) map[uint32]bool {
	if hi <= lo {
		return nil
	}
	missing := o.store.FindUncachedLedgers(lo, hi-lo, time.Now())
	for i := uint32(0); i < hi-lo-uint32(len(missing)); i++ {
		o.metrics.CacheHit()
	}
	if len(missing) == 0 {
		return nil
	}

	notFound := make(map[uint32]bool)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrency)
	for _, seq := range missing {
		seq := seq
		g.Go(func() error {
			o.metrics.CacheMiss()
			fetchStart := time.Now()
			events, err := o.fetcher.FetchLedger(gctx, seq)
			if err != nil {
				if errors.Is(err, ErrLedgerNotFound) {
					o.metrics.ObserveBackfillFetch(time.Since(fetchStart), "not_found")
					mu.Lock()
					notFound[seq] = true
					mu.Unlock()
					return nil
				}
				o.metrics.ObserveBackfillFetch(time.Since(fetchStart), "error")
				o.log.WithField("ledger", seq).WithError(err).Warn("backfill: failed to fetch ledger")
				return nil
			}
			o.metrics.ObserveBackfillFetch(time.Since(fetchStart), "ok")
			o.store.InsertEvents(events)
			o.store.RecordLedgerCached(seq)
			return nil
		})
	}
	_ = g.Wait() // fetch errors are per-ledger and already logged; ctx cancellation just stops early

	return notFound
}
