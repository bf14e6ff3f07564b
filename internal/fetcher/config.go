package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/stellar/go/support/log"

	"github.com/stellar/ledger-events-api/internal/ledgerpath"
)

// FetchStoreConfig fetches "{metaURL}/.config.json" once at startup. On any
// failure it logs a warning and returns ledgerpath.Default(), matching
// original_source/src/main.rs's graceful fallback to the pubnet layout.
func FetchStoreConfig(ctx context.Context, client *http.Client, metaURL string, logger *log.Entry) ledgerpath.StoreConfig {
	url := metaURL + "/.config.json"
	logger.WithField("url", url).Info("fetching store config")

	cfg, err := fetchStoreConfig(ctx, client, url)
	if err != nil {
		logger.WithError(err).Warn("could not load store config, falling back to pubnet default")
		return ledgerpath.Default()
	}

	logger.WithField("ledgers_per_batch", cfg.LedgersPerBatch).
		WithField("batches_per_partition", cfg.BatchesPerPartition).
		Info("store config loaded")
	return cfg
}

func fetchStoreConfig(ctx context.Context, client *http.Client, url string) (ledgerpath.StoreConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ledgerpath.StoreConfig{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return ledgerpath.StoreConfig{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ledgerpath.StoreConfig{}, fmt.Errorf("fetcher: config fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ledgerpath.StoreConfig{}, err
	}

	var cfg ledgerpath.StoreConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return ledgerpath.StoreConfig{}, fmt.Errorf("fetcher: decoding store config: %w", err)
	}
	return cfg, nil
}

// DiscoverLatestLedger queries Horizon for the chain tip, used by the
// tailer for cold-start ledger discovery when no --start-ledger is given
// and no prior sync_state exists (original_source sync.rs).
func DiscoverLatestLedger(ctx context.Context, client *http.Client) (uint32, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://horizon.stellar.org/", nil)
	if err != nil {
		return 0, false
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, false
	}

	var body struct {
		HistoryLatestLedger uint32 `json:"history_latest_ledger"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, false
	}
	return body.HistoryLatestLedger, true
}
