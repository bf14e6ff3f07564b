package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stellar/go/support/log"
	"github.com/stretchr/testify/require"
)

func TestHandlerExposesRegisteredCollectors(t *testing.T) {
	m := New(log.DefaultLogger)
	m.CacheHit()
	m.CacheMiss()
	m.ObserveScan(5 * time.Millisecond)
	m.ObserveBackfillFetch(10*time.Millisecond, "ok")
	m.ObserveParserRejection("UnknownKey")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "ledger_events_api_cache_hits_total 1")
	require.Contains(t, body, "ledger_events_api_cache_misses_total 1")
	require.Contains(t, body, "ledger_events_api_query_parser_rejections_total")
}

func TestLogPercentilesToleratesEmptyWindow(t *testing.T) {
	m := New(log.DefaultLogger)
	m.LogPercentiles() // no samples yet; must not panic
}

func TestNilMetricsToleratesEveryMethod(t *testing.T) {
	var m *Metrics
	m.CacheHit()
	m.CacheMiss()
	m.ObserveScan(time.Millisecond)
	m.ObserveBackfillFetch(time.Millisecond, "ok")
	m.ObserveParserRejection("UnknownKey")
	m.LogPercentiles()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestObserveScanBoundsRollingWindow(t *testing.T) {
	m := New(log.DefaultLogger)
	for i := 0; i < maxRecentScans+10; i++ {
		m.ObserveScan(time.Millisecond)
	}
	require.Len(t, m.recentScans, maxRecentScans)
}
