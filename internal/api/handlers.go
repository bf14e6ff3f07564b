package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi"

	"github.com/stellar/ledger-events-api/internal/apierr"
	"github.com/stellar/ledger-events-api/internal/queryengine"
	"github.com/stellar/ledger-events-api/internal/queryparser"
)

const defaultLimit = 10

// listRequest is the shared field set GET and POST /events both parse into,
// per spec.md §6.
type listRequest struct {
	Limit  *uint32 `json:"limit"`
	After  string  `json:"after"`
	Before string  `json:"before"`
	Q      string  `json:"q"`
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	var err error

	if r.Method == http.MethodPost {
		req, err = decodeListRequestBody(r)
	} else {
		req, err = decodeListRequestQuery(r)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	limit := defaultLimit
	if req.Limit != nil {
		limit = int(*req.Limit)
	}

	params := queryengine.Params{
		Limit:  limit,
		After:  req.After,
		Before: req.Before,
	}

	if strings.TrimSpace(req.Q) != "" {
		compiled, perr := queryparser.Parse(req.Q)
		if perr != nil {
			kind := "Unknown"
			if pe, ok := perr.(*queryparser.ParseError); ok {
				kind = pe.Kind.String()
			}
			s.metrics.ObserveParserRejection(kind)
			writeError(w, apierr.BadRequestParam("q", "%s", perr.Error()))
			return
		}
		params.Filters = compiled
	}

	result, qerr := s.engine.Query(r.Context(), params)
	if qerr != nil {
		writeError(w, qerr)
		return
	}

	events := make([]Event, 0, len(result.Events))
	for _, e := range result.Events {
		events = append(events, eventFromStored(e))
	}

	writeJSON(w, http.StatusOK, ListResponse{
		Object: "list",
		URL:    "/events",
		Next:   result.Next,
		Data:   events,
	})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "id")

	seq, internalID, ok := decodeEventID(externalID)
	if !ok {
		writeError(w, apierr.NotFound("no event found with id %q", externalID))
		return
	}

	s.backfill.BackfillLedger(r.Context(), seq)

	event, found := s.store.GetEvent(seq, internalID)
	if !found {
		writeError(w, apierr.NotFound("no event found with id %q", externalID))
		return
	}

	writeJSON(w, http.StatusOK, eventFromStored(event))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	latest, _ := s.store.LatestLedgerSequence()
	earliest, _ := s.store.EarliestLedgerSequence()

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:            "ok",
		EarliestLedger:    earliest,
		LatestLedger:      latest,
		NetworkPassphrase: s.networkPassphrase,
		Version:           s.version,
	})
}

func (s *Server) handleExplorer(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(explorerHTML)
}

// decodeListRequestQuery parses the raw GET query string, tolerating
// key[]=value and repeated keys per spec.md §6 ("GET parses the raw query
// string to tolerate key[]=... and repeated keys"): the first occurrence of
// each normalized key wins.
func decodeListRequestQuery(r *http.Request) (listRequest, error) {
	raw := r.URL.RawQuery
	if _, err := url.ParseQuery(raw); err != nil {
		return listRequest{}, apierr.BadRequest("malformed query string")
	}

	// Walk the raw pairs in order so "first occurrence" also holds across the
	// key and key[] spellings; ParseQuery above already rejected bad escapes.
	normalized := make(map[string][]string)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, _ := url.QueryUnescape(k)
		val, _ := url.QueryUnescape(v)
		key = strings.TrimSuffix(key, "[]")
		normalized[key] = append(normalized[key], val)
	}

	first := func(key string) string {
		if v := normalized[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	var req listRequest
	if limitStr := first("limit"); limitStr != "" {
		n, err := strconv.ParseUint(limitStr, 10, 32)
		if err != nil {
			return listRequest{}, apierr.BadRequestParam("limit", "limit must be a positive integer")
		}
		v := uint32(n)
		req.Limit = &v
	}
	req.After = first("after")
	req.Before = first("before")
	req.Q = first("q")
	return req, nil
}

func decodeListRequestBody(r *http.Request) (listRequest, error) {
	defer r.Body.Close()
	var req listRequest
	if r.ContentLength == 0 {
		return req, nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		return listRequest{}, apierr.BadRequest("invalid JSON request body: %s", err.Error())
	}
	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	apiErr, ok := err.(*apierr.Error)
	if !ok {
		apiErr = apierr.Internal("%s", err.Error())
	}
	writeJSON(w, apiErr.Status(), errorEnvelope{Error: errorBody{
		Type:    apiErr.Type(),
		Code:    apiErr.Code(),
		Message: apiErr.Message,
		Param:   apiErr.Param,
	}})
}
