package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stellar/go/support/log"
	"github.com/stretchr/testify/require"

	"github.com/stellar/ledger-events-api/internal/backfill"
	"github.com/stellar/ledger-events-api/internal/ledgerpath"
)

func TestFetchLedgerMapsNotFoundToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := New(log.DefaultLogger, srv.Client(), srv.URL, ledgerpath.Default())

	_, err := f.FetchLedger(context.Background(), 100)
	require.ErrorIs(t, err, backfill.ErrLedgerNotFound)
}

func TestFetchLedgerWrapsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := New(log.DefaultLogger, srv.Client(), srv.URL, ledgerpath.Default())

	_, err := f.FetchLedger(context.Background(), 100)
	require.Error(t, err)
	require.NotErrorIs(t, err, backfill.ErrLedgerNotFound)
}
