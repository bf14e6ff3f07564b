package api

import "github.com/stellar/ledger-events-api/internal/store"

// Event is the wire representation of one store.StoredEvent, per spec.md
// §6: "object:event, id, url, ledger, at (RFC3339), tx, type, contract?,
// topics, data".
type Event struct {
	Object     string        `json:"object"`
	ID         string        `json:"id"`
	URL        string        `json:"url"`
	Ledger     uint32        `json:"ledger"`
	At         string        `json:"at"`
	Tx         string        `json:"tx"`
	Type       string        `json:"type"`
	ContractID string        `json:"contract,omitempty"`
	Topics     []interface{} `json:"topics"`
	Data       interface{}   `json:"data"`
}

// eventFromStored projects a store.StoredEvent into the wire shape.
func eventFromStored(e store.StoredEvent) Event {
	return Event{
		Object:     "event",
		ID:         e.ExternalID,
		URL:        "/events/" + e.ExternalID,
		Ledger:     e.LedgerSequence,
		At:         e.LedgerClosedAt,
		Tx:         e.TxHash,
		Type:       e.EventType,
		ContractID: e.ContractID,
		Topics:     e.Topics,
		Data:       e.Data,
	}
}

// ListResponse is the list envelope per spec.md §6.
type ListResponse struct {
	Object string  `json:"object"`
	URL    string  `json:"url"`
	Next   string  `json:"next,omitempty"`
	Data   []Event `json:"data"`
}

// HealthResponse is GET /health's body. earliest_ledger/network_passphrase
// supplement spec.md per SPEC_FULL.md §C, grounded in original_source's
// routes.rs::health.
type HealthResponse struct {
	Status            string `json:"status"`
	EarliestLedger    uint32 `json:"earliest_ledger,omitempty"`
	LatestLedger      uint32 `json:"latest_ledger,omitempty"`
	NetworkPassphrase string `json:"network_passphrase"`
	Version           string `json:"version"`
}

// errorEnvelope is the body every 4xx/5xx response carries, per spec.md §7.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}
