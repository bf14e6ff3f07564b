// Package fetcher retrieves ledger close meta batches from the remote
// object store, decompresses and decodes them, and extracts the contract,
// system, and diagnostic events they contain into store.StoredEvent values.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/sony/gobreaker"
	"github.com/stellar/go/ingest"
	"github.com/stellar/go/strkey"
	"github.com/stellar/go/support/log"
	"github.com/stellar/go/xdr"

	"github.com/stellar/ledger-events-api/internal/backfill"
	"github.com/stellar/ledger-events-api/internal/eventid"
	"github.com/stellar/ledger-events-api/internal/ledgerpath"
	"github.com/stellar/ledger-events-api/internal/store"
)

// Fetcher retrieves and decodes ledger batches over HTTP from {metaURL}/{path}.
// It implements backfill.Fetcher.
type Fetcher struct {
	log        *log.Entry
	httpClient *http.Client
	metaURL    string
	cfg        ledgerpath.StoreConfig
	breaker    *gobreaker.CircuitBreaker

	mu              sync.Mutex
	contractIDCache map[xdr.Hash]string
}

// New constructs a Fetcher. The circuit breaker trips after 5 consecutive
// failures and stays open for 30s before allowing a trial request, the same
// shape the object store's client-facing failure mode calls for: a string of
// "ledger not found" or transport errors should not hammer the bucket.
func New(logger *log.Entry, httpClient *http.Client, metaURL string, cfg ledgerpath.StoreConfig) *Fetcher {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ledger-object-store",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithField("breaker", name).WithField("from", from.String()).WithField("to", to.String()).Warn("object store circuit breaker state change")
		},
	})

	return &Fetcher{
		log:             logger,
		httpClient:      httpClient,
		metaURL:         metaURL,
		cfg:             cfg,
		breaker:         breaker,
		contractIDCache: make(map[xdr.Hash]string),
	}
}

// FetchLedger fetches and decodes ledger batch containing ledgerSequence and
// returns the events it extracted. Events are returned for every ledger in
// the fetched batch, not only ledgerSequence itself -- the caller is
// expected to cache them all (internal/backfill does this via
// store.InsertEvents + store.RecordLedgerCached per sequence).
func (f *Fetcher) FetchLedger(ctx context.Context, ledgerSequence uint32) ([]store.StoredEvent, error) {
	path := f.cfg.PathForLedger(ledgerSequence)
	url := f.metaURL + "/" + path

	result, err := f.breaker.Execute(func() (interface{}, error) {
		return f.fetchAndDecode(ctx, url)
	})
	if err != nil {
		if errors.Is(err, errLedgerNotFoundSentinel) {
			return nil, backfill.ErrLedgerNotFound
		}
		return nil, fmt.Errorf("fetcher: fetching ledger %d: %w", ledgerSequence, err)
	}

	batch := result.(xdr.LedgerCloseMetaBatch)
	return f.extractEvents(batch)
}

var errLedgerNotFoundSentinel = fmt.Errorf("ledger not found in object store")

func (f *Fetcher) fetchAndDecode(ctx context.Context, url string) (xdr.LedgerCloseMetaBatch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return xdr.LedgerCloseMetaBatch{}, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return xdr.LedgerCloseMetaBatch{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return xdr.LedgerCloseMetaBatch{}, errLedgerNotFoundSentinel
	}
	if resp.StatusCode != http.StatusOK {
		return xdr.LedgerCloseMetaBatch{}, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	decoder, err := zstd.NewReader(resp.Body)
	if err != nil {
		return xdr.LedgerCloseMetaBatch{}, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer decoder.Close()

	data, err := io.ReadAll(decoder)
	if err != nil {
		return xdr.LedgerCloseMetaBatch{}, fmt.Errorf("decompressing ledger batch: %w", err)
	}

	var batch xdr.LedgerCloseMetaBatch
	if _, err := xdr.Unmarshal(bytes.NewReader(data), &batch); err != nil {
		return xdr.LedgerCloseMetaBatch{}, fmt.Errorf("decoding ledger batch xdr: %w", err)
	}
	return batch, nil
}

// extractEvents walks every ledger in the batch, reading each transaction's
// diagnostic events the way cmd/soroban-rpc/internal/db/event.go's
// InsertEvents does, and converts them into StoredEvent values keyed by the
// reversible internal id scheme.
func (f *Fetcher) extractEvents(batch xdr.LedgerCloseMetaBatch) ([]store.StoredEvent, error) {
	var out []store.StoredEvent

	for _, lcm := range batch.LedgerCloseMetas {
		seq := lcm.LedgerSequence()
		closedAt := time.Unix(int64(lcm.LedgerCloseTime()), 0).UTC().Format(time.RFC3339)

		txReader, err := ingest.NewLedgerTransactionReaderFromLedgerCloseMeta(f.cfg.NetworkPassphrase, lcm)
		if err != nil {
			return nil, fmt.Errorf("opening transaction reader for ledger %d: %w", seq, err)
		}

		txIndex := uint32(0)
		for {
			tx, readErr := txReader.Read()
			if readErr == io.EOF {
				break
			}
			if readErr != nil {
				txReader.Close()
				return nil, fmt.Errorf("reading transaction in ledger %d: %w", seq, readErr)
			}

			if tx.Result.Successful() {
				diagEvents, evErr := tx.GetDiagnosticEvents()
				if evErr != nil {
					txReader.Close()
					return nil, fmt.Errorf("reading diagnostic events in ledger %d tx %d: %w", seq, txIndex, evErr)
				}
				txHash := tx.Result.TransactionHash.HexString()

				for eventIndex, diag := range diagEvents {
					converted, convErr := f.convertEvent(seq, closedAt, txIndex, uint32(eventIndex), txHash, diag.Event)
					if convErr != nil {
						f.log.WithField("ledger", seq).WithField("tx", txIndex).WithError(convErr).Warn("fetcher: skipping unconvertible event")
						continue
					}
					out = append(out, converted)
				}
			}
			txIndex++
		}
		txReader.Close()
	}

	return out, nil
}

// convertEvent builds a StoredEvent from one ContractEvent. Every extracted
// event is recorded with eventid.Operation: the diagnostic-event API this is
// grounded on (stellar/go's ingest.LedgerTransaction.GetDiagnosticEvents)
// only surfaces per-operation contract events, not the transaction-level
// before/after-all-txs events a newer protocol stage would add.
func (f *Fetcher) convertEvent(ledgerSeq uint32, closedAt string, txIndex, eventIndex uint32, txHash string, event xdr.ContractEvent) (store.StoredEvent, error) {
	var contractID string
	if event.ContractId != nil {
		contractID = f.contractStrkey(*event.ContractId)
	}

	eventType, err := eventTypeName(event.Type)
	if err != nil {
		return store.StoredEvent{}, err
	}

	if event.Body.V0 == nil {
		return store.StoredEvent{}, fmt.Errorf("unsupported contract event body version")
	}
	v0 := *event.Body.V0

	topics := make([]interface{}, 0, len(v0.Topics))
	for _, t := range v0.Topics {
		converted, convErr := ConvertScValToJSON(t)
		if convErr != nil {
			topics = append(topics, map[string]interface{}{"error": convErr.Error()})
			continue
		}
		topics = append(topics, converted)
	}

	data, err := ConvertScValToJSON(v0.Data)
	if err != nil {
		data = map[string]interface{}{"error": err.Error()}
	}

	internal := eventid.Internal(ledgerSeq, eventid.Operation, txIndex, eventIndex)
	external, ok := eventid.ToExternal(internal)
	if !ok {
		return store.StoredEvent{}, fmt.Errorf("encoding event id for ledger %d tx %d event %d", ledgerSeq, txIndex, eventIndex)
	}

	return store.StoredEvent{
		InternalID:     internal,
		ExternalID:     external,
		LedgerSequence: ledgerSeq,
		LedgerClosedAt: closedAt,
		ContractID:     contractID,
		EventType:      eventType,
		Topics:         topics,
		Data:           data,
		TxHash:         txHash,
	}, nil
}

// contractStrkey encodes a contract id hash as a "C..." strkey address,
// memoizing the conversion since many events in a batch share a contract.
func (f *Fetcher) contractStrkey(hash xdr.Hash) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cached, ok := f.contractIDCache[hash]; ok {
		return cached
	}
	encoded, err := strkey.Encode(strkey.VersionByteContract, hash[:])
	if err != nil {
		return ""
	}
	f.contractIDCache[hash] = encoded
	return encoded
}

func eventTypeName(t xdr.ContractEventType) (string, error) {
	switch t {
	case xdr.ContractEventTypeSystem:
		return "system", nil
	case xdr.ContractEventTypeContract:
		return "contract", nil
	case xdr.ContractEventTypeDiagnostic:
		return "diagnostic", nil
	default:
		return "", fmt.Errorf("unknown contract event type %v", t)
	}
}
