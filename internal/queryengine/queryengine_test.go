package queryengine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stellar/go/support/log"
	"github.com/stretchr/testify/require"

	"github.com/stellar/ledger-events-api/internal/backfill"
	"github.com/stellar/ledger-events-api/internal/eventid"
	"github.com/stellar/ledger-events-api/internal/store"
)

// noopFetcher never has anything to fetch: all tests pre-populate the store
// directly, exercising only the in-memory scan/routing logic.
type noopFetcher struct{}

func (noopFetcher) FetchLedger(context.Context, uint32) ([]store.StoredEvent, error) {
	return nil, backfill.ErrLedgerNotFound
}

func newTestEngine(s *store.EventStore) *Engine {
	bf := backfill.New(log.DefaultLogger, s, noopFetcher{}, 4)
	return New(log.DefaultLogger, s, bf)
}

func mkEvent(ledger, tx, eventIdx uint32, eventType, contractID string, topics []interface{}) store.StoredEvent {
	internal := eventid.Internal(ledger, eventid.Operation, tx, eventIdx)
	external, ok := eventid.ToExternal(internal)
	if !ok {
		panic("bad fixture id")
	}
	return store.StoredEvent{
		InternalID:     internal,
		ExternalID:     external,
		LedgerSequence: ledger,
		ContractID:     contractID,
		EventType:      eventType,
		Topics:         topics,
		TxHash:         fmt.Sprintf("tx-%d-%d", ledger, tx),
	}
}

func TestQuerySingleType(t *testing.T) {
	s := store.New(log.DefaultLogger, 3600)
	s.InsertEvents([]store.StoredEvent{
		mkEvent(100, 0, 0, "contract", "CAAA", nil),
		mkEvent(100, 1, 0, "system", "", nil),
	})
	e := newTestEngine(s)
	ledger := uint32(100)

	res, err := e.Query(context.Background(), Params{
		Limit:  10,
		Ledger: &ledger,
		Filters: []store.EventFilter{
			{EventType: "system"},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	require.Equal(t, "system", res.Events[0].EventType)
}

func TestQueryAndWithinGroup(t *testing.T) {
	s := store.New(log.DefaultLogger, 3600)
	caID := "CAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	cbID := "CBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	s.InsertEvents([]store.StoredEvent{
		mkEvent(100, 0, 0, "contract", caID, []interface{}{map[string]interface{}{"symbol": "init"}}),
		mkEvent(100, 1, 0, "contract", cbID, []interface{}{map[string]interface{}{"symbol": "mint"}}),
		mkEvent(100, 2, 0, "contract", caID, []interface{}{map[string]interface{}{"symbol": "mint"}}),
		mkEvent(100, 3, 0, "system", caID, []interface{}{map[string]interface{}{"symbol": "mint"}}),
		mkEvent(100, 4, 0, "contract", caID, []interface{}{map[string]interface{}{"symbol": "burn"}}),
	})
	e := newTestEngine(s)
	ledger := uint32(100)

	res, err := e.Query(context.Background(), Params{
		Limit:  10,
		Ledger: &ledger,
		Filters: []store.EventFilter{
			{
				ContractID: caID,
				EventType:  "contract",
				Topics:     []interface{}{map[string]interface{}{"symbol": "mint"}},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	require.Equal(t, caID, res.Events[0].ContractID)
	require.Equal(t, "tx-100-2", res.Events[0].TxHash)
}

func TestQueryDNFProductUnion(t *testing.T) {
	s := store.New(log.DefaultLogger, 3600)
	caID, cbID := "CAAA", "CBBB"
	s.InsertEvents([]store.StoredEvent{
		mkEvent(100, 0, 0, "contract", caID, nil),
		mkEvent(100, 1, 0, "system", cbID, nil),
		mkEvent(100, 2, 0, "diagnostic", caID, nil),
		mkEvent(100, 3, 0, "diagnostic", "CCCC", nil),
	})
	e := newTestEngine(s)
	ledger := uint32(100)

	// (type:contract OR type:system) (contract:CAAA OR contract:CBBB), as 4 filters.
	filters := []store.EventFilter{
		{EventType: "contract", ContractID: caID},
		{EventType: "contract", ContractID: cbID},
		{EventType: "system", ContractID: caID},
		{EventType: "system", ContractID: cbID},
	}
	res, err := e.Query(context.Background(), Params{Limit: 10, Ledger: &ledger, Filters: filters})
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
}

func TestQueryProgressiveBackwardAcrossPartitions(t *testing.T) {
	s := store.New(log.DefaultLogger, 3600)
	s.InsertEvents([]store.StoredEvent{
		mkEvent(100, 0, 0, "contract", "CAAA", nil),
		mkEvent(100, 1, 0, "contract", "CAAA", nil),
		mkEvent(101, 0, 0, "contract", "CAAA", nil),
		mkEvent(101, 1, 0, "contract", "CAAA", nil),
		mkEvent(102, 0, 0, "contract", "CAAA", nil),
		mkEvent(102, 1, 0, "contract", "CAAA", nil),
	})
	e := newTestEngine(s)

	res, err := e.Query(context.Background(), Params{Limit: 3})
	require.NoError(t, err)
	require.Len(t, res.Events, 3)
	require.EqualValues(t, 102, res.Events[0].LedgerSequence)
	require.EqualValues(t, 102, res.Events[1].LedgerSequence)
	require.EqualValues(t, 101, res.Events[2].LedgerSequence)

	page2, err := e.Query(context.Background(), Params{Limit: 2, Before: res.Next})
	require.NoError(t, err)
	require.Len(t, page2.Events, 2)
	require.EqualValues(t, 101, page2.Events[0].LedgerSequence)
	require.EqualValues(t, 100, page2.Events[1].LedgerSequence)
}

func TestQueryTopicWildcard(t *testing.T) {
	s := store.New(log.DefaultLogger, 3600)
	s.InsertEvents([]store.StoredEvent{
		mkEvent(100, 0, 0, "contract", "CAAA", []interface{}{
			map[string]interface{}{"symbol": "transfer"},
			map[string]interface{}{"address": "GABC"},
			map[string]interface{}{"address": "GDEF"},
		}),
		mkEvent(100, 1, 0, "contract", "CAAA", []interface{}{
			map[string]interface{}{"symbol": "transfer"},
			map[string]interface{}{"address": "GCCC"},
			map[string]interface{}{"address": "GDDD"},
		}),
	})
	e := newTestEngine(s)
	ledger := uint32(100)

	res, err := e.Query(context.Background(), Params{
		Limit:  10,
		Ledger: &ledger,
		Filters: []store.EventFilter{{
			Topics: []interface{}{
				map[string]interface{}{"symbol": "transfer"},
				store.Wildcard,
				map[string]interface{}{"address": "GDEF"},
			},
		}},
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	require.Equal(t, "tx-100-0", res.Events[0].TxHash)
}

func TestQueryLimitOutOfRangeIsRejected(t *testing.T) {
	s := store.New(log.DefaultLogger, 3600)
	e := newTestEngine(s)

	_, err := e.Query(context.Background(), Params{Limit: 0})
	require.Error(t, err)

	_, err = e.Query(context.Background(), Params{Limit: 101})
	require.Error(t, err)
}

func TestQueryBothCursorsRejected(t *testing.T) {
	s := store.New(log.DefaultLogger, 3600)
	e := newTestEngine(s)

	_, err := e.Query(context.Background(), Params{Limit: 1, After: "x", Before: "y"})
	require.Error(t, err)
}

func TestQueryMalformedCursorRejected(t *testing.T) {
	s := store.New(log.DefaultLogger, 3600)
	e := newTestEngine(s)

	_, err := e.Query(context.Background(), Params{Limit: 1, After: "not-a-real-cursor"})
	require.Error(t, err)
}

func TestQueryEmptyStoreReturnsEmptyResult(t *testing.T) {
	s := store.New(log.DefaultLogger, 3600)
	e := newTestEngine(s)

	res, err := e.Query(context.Background(), Params{Limit: 10})
	require.NoError(t, err)
	require.Empty(t, res.Events)
	require.Empty(t, res.Next)
}
