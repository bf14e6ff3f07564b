// Package api implements the HTTP surface from spec.md §6: list/point-lookup
// events endpoints backed by internal/queryengine and internal/queryparser,
// a health check, an optional Prometheus metrics endpoint, and the static
// HTML explorer page. Routing and CORS follow the teacher's stack
// (go-chi/chi, rs/cors); request correlation uses google/uuid.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/stellar/go/support/log"

	"github.com/stellar/ledger-events-api/internal/backfill"
	"github.com/stellar/ledger-events-api/internal/eventid"
	"github.com/stellar/ledger-events-api/internal/metrics"
	"github.com/stellar/ledger-events-api/internal/queryengine"
	"github.com/stellar/ledger-events-api/internal/store"
)

// Server composes every dependency an HTTP handler needs. One Server is
// built per process and threaded through NewRouter; there is no package
// level mutable state (spec.md §9's "Global state" design note).
type Server struct {
	log      *log.Entry
	store    *store.EventStore
	engine   *queryengine.Engine
	backfill *backfill.Orchestrator
	metrics  *metrics.Metrics

	networkPassphrase string
	version           string
}

// New constructs a Server. metrics may be nil, which disables GET /metrics
// and all metric recording (every internal/metrics method tolerates a nil
// receiver).
func New(logger *log.Entry, s *store.EventStore, engine *queryengine.Engine, bf *backfill.Orchestrator, m *metrics.Metrics, networkPassphrase, version string) *Server {
	return &Server{
		log:               logger,
		store:             s,
		engine:            engine,
		backfill:          bf,
		metrics:           m,
		networkPassphrase: networkPassphrase,
		version:           version,
	}
}

// NewRouter builds the chi router: CORS, request-id stamping, and the
// routes spec.md §6 describes.
func (s *Server) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.logRequest)

	c := cors.New(cors.Options{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	})

	r.Get("/", s.handleExplorer)
	r.Get("/health", s.handleHealth)
	r.Get("/events", s.handleListEvents)
	r.Post("/events", s.handleListEvents)
	r.Get("/events/{id}", s.handleGetEvent)
	if s.metrics != nil {
		r.Get("/metrics", s.metrics.Handler().ServeHTTP)
	}

	return c.Handler(r)
}

// requestID stamps every inbound request with a fresh correlation id,
// surfaced as the X-Request-Id response header and threaded into the
// request-scoped logger used by logRequest and the handlers.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), id)))
	})
}

// logRequest emits one structured log line per request with method, path,
// status, duration, and request id, matching the teacher's
// WithField-chained logging style.
func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.log.WithField("request_id", requestIDFrom(r.Context())).
			WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("status", rec.status).
			WithField("duration_ms", time.Since(start).Milliseconds()).
			Debug("handled request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// decodeEventID converts an opaque external event id to its internal form
// and the ledger sequence it's pinned to, used to pick which partition a
// point lookup needs backfilled before the store lookup itself.
func decodeEventID(externalID string) (seq uint32, internalID string, ok bool) {
	internal, ok := eventid.ToInternal(externalID)
	if !ok {
		return 0, "", false
	}
	seq, _, _, _, _, ok = eventid.ParseInternal(internal)
	if !ok {
		return 0, "", false
	}
	return seq, internal, true
}
