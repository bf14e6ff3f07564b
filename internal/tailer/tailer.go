// Package tailer implements the background sync loop that proactively keeps
// the event store warm: discovering where to resume on cold start, fetching
// ledgers in bounded concurrent batches as the chain advances, falling back
// to exponential backoff on error, and periodically evicting expired
// partitions. Grounded on original_source/src/sync.rs's run_sync.
package tailer

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stellar/go/support/log"
	"golang.org/x/sync/errgroup"

	"github.com/stellar/ledger-events-api/internal/backfill"
	"github.com/stellar/ledger-events-api/internal/store"
)

const (
	pollInterval        = 5 * time.Second
	cleanupInterval     = time.Hour
	syncStateKey        = "last_synced_ledger"
	fallbackStartLedger = 58_000_000
)

// Discoverer resolves a starting ledger sequence when neither an explicit
// start nor prior sync state is available, e.g. via Horizon.
type Discoverer interface {
	DiscoverLatestLedger(ctx context.Context) (uint32, bool)
}

// DiscovererFunc adapts a plain function to Discoverer.
type DiscovererFunc func(ctx context.Context) (uint32, bool)

func (f DiscovererFunc) DiscoverLatestLedger(ctx context.Context) (uint32, bool) {
	return f(ctx)
}

// Tailer runs the background sync loop. It is not safe for concurrent use of
// Run from multiple goroutines, but Run itself spawns the cleanup goroutine
// internally.
type Tailer struct {
	log             *log.Entry
	store           *store.EventStore
	fetcher         backfill.Fetcher
	discoverer      Discoverer
	parallelFetches uint32
}

// New constructs a Tailer. parallelFetches bounds how many ledgers are
// fetched concurrently within one sync iteration.
func New(logger *log.Entry, s *store.EventStore, fetcher backfill.Fetcher, discoverer Discoverer, parallelFetches uint32) *Tailer {
	if parallelFetches == 0 {
		parallelFetches = 1
	}
	return &Tailer{log: logger, store: s, fetcher: fetcher, discoverer: discoverer, parallelFetches: parallelFetches}
}

// Run blocks, tailing the chain until ctx is canceled. startLedger, if
// non-nil, pins the resume point; otherwise Run resumes from persisted sync
// state, then falls back to Horizon discovery, then a hardcoded recent
// ledger.
func (t *Tailer) Run(ctx context.Context, startLedger *uint32) {
	current := t.resolveStart(ctx, startLedger)
	t.log.WithField("ledger", current).Info("starting ledger sync")

	go t.runCleanup(ctx)

	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = time.Second
	backoffPolicy.Multiplier = 2
	backoffPolicy.MaxInterval = 60 * time.Second
	backoffPolicy.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			return
		}

		for {
			if t.isCached(current) {
				current++
				backoffPolicy.Reset()
				continue
			}
			break
		}

		advanced, sleepFor := t.syncBatch(ctx, current, backoffPolicy)
		current += advanced

		if sleepFor <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepFor):
		}
	}
}

// syncBatch fetches t.parallelFetches ledgers starting at current
// concurrently, then applies results in strict ledger order, stopping at the
// first failure or "not found" so the sequence never advances past a gap.
// It returns how many ledgers were installed and how long to sleep before
// the next iteration (0 meaning "continue immediately").
func (t *Tailer) syncBatch(ctx context.Context, current uint32, backoffPolicy *backoff.ExponentialBackOff) (uint32, time.Duration) {
	type fetchResult struct {
		events []store.StoredEvent
		err    error
	}
	results := make([]fetchResult, t.parallelFetches)

	g, gctx := errgroup.WithContext(ctx)
	for i := uint32(0); i < t.parallelFetches; i++ {
		i := i
		seq := current + i
		g.Go(func() error {
			events, err := t.fetcher.FetchLedger(gctx, seq)
			results[i] = fetchResult{events: events, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var advanced uint32
	totalEvents := 0

	for i, res := range results {
		seq := current + uint32(i)

		if res.err != nil {
			if errors.Is(res.err, backfill.ErrLedgerNotFound) {
				t.log.WithField("ledger", seq).Debug("ledger not yet available, waiting")
				return advanced, pollInterval
			}
			t.log.WithField("ledger", seq).WithError(res.err).Warn("failed to fetch ledger")
			return advanced, backoffPolicy.NextBackOff()
		}

		t.store.InsertEvents(res.events)
		t.store.RecordLedgerCached(seq)
		t.store.SetSyncState(syncStateKey, formatLedger(seq))

		advanced++
		totalEvents += len(res.events)
		backoffPolicy.Reset()
	}

	if advanced > 0 {
		t.log.WithField("from", current).WithField("to", current+advanced-1).WithField("events", totalEvents).Info("synced ledgers")
	}
	return advanced, 0
}

func (t *Tailer) isCached(seq uint32) bool {
	missing := t.store.FindUncachedLedgers(seq, 1, time.Now())
	return len(missing) == 0
}

func (t *Tailer) runCleanup(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.store.CleanupExpired(time.Now()); n > 0 {
				t.log.WithField("count", n).Info("cleaned up expired ledger cache entries")
			}
		}
	}
}

func (t *Tailer) resolveStart(ctx context.Context, startLedger *uint32) uint32 {
	if startLedger != nil {
		return *startLedger
	}
	if last, ok := t.store.GetSyncState(syncStateKey); ok {
		if seq, ok := parseLedger(last); ok {
			return seq + 1
		}
	}
	if t.discoverer != nil {
		if seq, ok := t.discoverer.DiscoverLatestLedger(ctx); ok {
			t.log.WithField("ledger", seq).Info("discovered latest ledger from horizon")
			if seq > 10 {
				return seq - 10
			}
			return 0
		}
	}
	t.log.Warn("could not discover latest ledger, starting from a recent default")
	return fallbackStartLedger
}

func formatLedger(seq uint32) string {
	return strconv.FormatUint(uint64(seq), 10)
}

func parseLedger(s string) (uint32, bool) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}
