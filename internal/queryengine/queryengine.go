// Package queryengine implements cursor-based pagination and filter
// evaluation over internal/store: single-partition scans for ledger-pinned
// requests, and a bounded progressive scan across partitions for requests
// that span uncached ranges, backfilling as it goes.
package queryengine

import (
	"context"
	"time"

	"github.com/stellar/go/support/log"

	"github.com/stellar/ledger-events-api/internal/apierr"
	"github.com/stellar/ledger-events-api/internal/backfill"
	"github.com/stellar/ledger-events-api/internal/eventid"
	"github.com/stellar/ledger-events-api/internal/metrics"
	"github.com/stellar/ledger-events-api/internal/store"
)

// Bounds on a cross-partition progressive scan, per spec.md §4.2/§5.
const (
	MaxLedgersSearched       = 1000
	ProgressiveSearchTimeout = 10 * time.Second
)

// Params is one request for Query. Query rejects a Limit outside 1..100 and
// After/Before given together. Cursor fields are in external (opaque)
// form, as received over the wire; Query converts them to internal form.
type Params struct {
	Limit   int
	After   string
	Before  string
	Ledger  *uint32
	Tx      string
	Filters []store.EventFilter
}

// Result is one page of query results: events in descending order by
// internal id, and the opaque cursor to resume from (the last *examined*
// id, which may differ from the last *returned* one).
type Result struct {
	Events []store.StoredEvent
	Next   string
}

// Engine ties the store to the backfill orchestrator and applies the
// routing rules from spec.md §4.2.
type Engine struct {
	log      *log.Entry
	store    *store.EventStore
	backfill *backfill.Orchestrator
	metrics  *metrics.Metrics
}

// New constructs an Engine.
func New(logger *log.Entry, s *store.EventStore, bf *backfill.Orchestrator) *Engine {
	return &Engine{log: logger, store: s, backfill: bf}
}

// SetMetrics installs the optional metrics handle Query's scan-duration
// observations are recorded against. A nil handle (the default) disables
// collection; every Metrics method tolerates a nil receiver.
func (e *Engine) SetMetrics(m *metrics.Metrics) {
	e.metrics = m
}

// Query executes one page of a request, routing to a single-partition scan
// when a ledger is pinned, or a progressive cross-partition scan otherwise.
func (e *Engine) Query(ctx context.Context, p Params) (Result, error) {
	start := time.Now()
	defer func() { e.metrics.ObserveScan(time.Since(start)) }()

	if p.Limit < 1 || p.Limit > 100 {
		return Result{}, apierr.BadRequestParam("limit", "limit must be between 1 and 100")
	}
	if p.After != "" && p.Before != "" {
		return Result{}, apierr.BadRequest("after and before are mutually exclusive")
	}

	after, err := internalCursor(p.After, "after")
	if err != nil {
		return Result{}, err
	}
	before, err := internalCursor(p.Before, "before")
	if err != nil {
		return Result{}, err
	}

	filters := applyQueryLevelConstraints(p)
	filterLedger := routingLedger(p, filters)

	if filterLedger != nil {
		return e.querySingleLedger(ctx, *filterLedger, after, before, filters, p.Limit)
	}
	if after != "" {
		startLedger, _, _, _, _, ok := eventid.ParseInternal(after)
		if !ok {
			return Result{}, apierr.BadRequestParam("after", "malformed cursor")
		}
		return e.queryProgressiveForward(ctx, startLedger, after, filters, p.Limit)
	}

	var startLedger uint32
	if before != "" {
		seq, _, _, _, _, ok := eventid.ParseInternal(before)
		if !ok {
			return Result{}, apierr.BadRequestParam("before", "malformed cursor")
		}
		startLedger = seq
	} else if latest, ok := e.store.LatestLedgerSequence(); ok {
		startLedger = latest
	} else {
		return Result{}, nil
	}
	return e.queryProgressiveBackward(ctx, startLedger, before, filters, p.Limit)
}

// internalCursor converts an opaque external cursor to its internal form.
// An empty string passes through unchanged (meaning "no cursor").
func internalCursor(external, param string) (string, error) {
	if external == "" {
		return "", nil
	}
	internal, ok := eventid.ToInternal(external)
	if !ok {
		return "", apierr.BadRequestParam(param, "malformed cursor %q", external)
	}
	return internal, nil
}

// applyQueryLevelConstraints folds the query-level tx constraint into every
// compiled filter, per spec.md's Open Questions: the source treats tx as
// both a query-level and filter-level constraint redundantly; this
// implementation keeps the query-level one authoritative and compiles it
// into each filter's Tx field so store.EventFilter.Matches only has to
// check one place.
func applyQueryLevelConstraints(p Params) []store.EventFilter {
	if p.Tx == "" {
		return p.Filters
	}
	if len(p.Filters) == 0 {
		return []store.EventFilter{{Tx: p.Tx}}
	}
	out := make([]store.EventFilter, len(p.Filters))
	for i, f := range p.Filters {
		f.Tx = p.Tx
		out[i] = f
	}
	return out
}

// routingLedger resolves which ledger (if any) pins this query to a single
// partition: the query-level Ledger takes priority, else the first filter
// that sets one (spec.md §4.2's "filter_ledger").
func routingLedger(p Params, filters []store.EventFilter) *uint32 {
	if p.Ledger != nil {
		return p.Ledger
	}
	for _, f := range filters {
		if f.Ledger != nil {
			return f.Ledger
		}
	}
	return nil
}

// querySingleLedger ensures the target partition is backfilled, then scans
// only that partition: forward with after (reversed so output is
// descending), backward otherwise.
func (e *Engine) querySingleLedger(ctx context.Context, seq uint32, after, before string, filters []store.EventFilter, limit int) (Result, error) {
	e.backfill.BackfillLedger(ctx, seq)

	remaining := limit
	var acc []store.StoredEvent

	if after != "" {
		lastID, _ := e.store.ScanLedgerForward(seq, after, filters, &acc, &remaining)
		reverse(acc)
		return Result{Events: acc, Next: externalOrEmpty(lastID)}, nil
	}

	lastID, _ := e.store.ScanLedgerBackward(seq, before, filters, &acc, &remaining)
	return Result{Events: acc, Next: externalOrEmpty(lastID)}, nil
}

// queryProgressiveForward scans ascending from startLedger/cursor toward
// the latest ledger, backfilling bounded batches as it goes. Output is
// reversed at the end so results are always descending by id.
func (e *Engine) queryProgressiveForward(ctx context.Context, startLedger uint32, cursor string, filters []store.EventFilter, limit int) (Result, error) {
	deadline := time.Now().Add(ProgressiveSearchTimeout)
	remaining := limit
	examinedLedgers := 0
	var acc []store.StoredEvent
	var lastExaminedID string

	ledger := startLedger
	firstLedger := true

	for remaining > 0 && examinedLedgers < MaxLedgersSearched && time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			break
		}

		hi := ledger + backfill.BatchSize
		notFound := e.backfill.BackfillWindow(ctx, ledger, hi)

		hitFrontier := false
		for seq := ledger; seq < hi; seq++ {
			if remaining <= 0 || examinedLedgers >= MaxLedgersSearched || !time.Now().Before(deadline) {
				break
			}
			if notFound[seq] {
				hitFrontier = true
				break
			}

			scanCursor := ""
			if firstLedger {
				scanCursor = cursor
			}
			firstLedger = false

			lastID, examined := e.store.ScanLedgerForward(seq, scanCursor, filters, &acc, &remaining)
			examinedLedgers++
			if examined {
				lastExaminedID = lastID
			}
		}

		if hitFrontier {
			break
		}
		ledger = hi
	}

	reverse(acc)
	return Result{Events: acc, Next: externalOrEmpty(lastExaminedID)}, nil
}

// queryProgressiveBackward scans descending from startLedger/cursor toward
// ledger 0. Results accumulate already in descending order.
func (e *Engine) queryProgressiveBackward(ctx context.Context, startLedger uint32, cursor string, filters []store.EventFilter, limit int) (Result, error) {
	deadline := time.Now().Add(ProgressiveSearchTimeout)
	remaining := limit
	examinedLedgers := 0
	var acc []store.StoredEvent
	var lastExaminedID string

	ledger := startLedger
	firstLedger := true
	reachedExtreme := false

	for !reachedExtreme && remaining > 0 && examinedLedgers < MaxLedgersSearched && time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			break
		}

		var lo uint32
		if ledger >= backfill.BatchSize {
			lo = ledger - backfill.BatchSize + 1
		}
		notFound := e.backfill.BackfillWindow(ctx, lo, ledger+1)

		hitFrontier := false
		seq := ledger
		for {
			if remaining <= 0 || examinedLedgers >= MaxLedgersSearched || !time.Now().Before(deadline) {
				break
			}
			if notFound[seq] {
				hitFrontier = true
				break
			}

			scanCursor := ""
			if firstLedger {
				scanCursor = cursor
			}
			firstLedger = false

			lastID, examined := e.store.ScanLedgerBackward(seq, scanCursor, filters, &acc, &remaining)
			examinedLedgers++
			if examined {
				lastExaminedID = lastID
			}

			if seq == lo {
				break
			}
			seq--
		}

		if hitFrontier {
			break
		}
		if lo == 0 {
			reachedExtreme = true
			break
		}
		ledger = lo - 1
	}

	return Result{Events: acc, Next: externalOrEmpty(lastExaminedID)}, nil
}

func reverse(events []store.StoredEvent) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
}

// externalOrEmpty passes through the external id the scan primitives
// already produce (they record StoredEvent.ExternalID, not the internal
// form) as the page's next cursor.
func externalOrEmpty(lastExaminedExternalID string) string {
	return lastExaminedExternalID
}
