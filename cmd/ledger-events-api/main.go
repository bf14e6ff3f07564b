// Command ledger-events-api runs the HTTP server: it wires the in-memory
// event store, the background tailer that keeps it warm, the on-demand
// backfill orchestrator, the query engine, and the HTTP surface together,
// then blocks serving requests until interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stellar/go/support/log"

	"github.com/stellar/ledger-events-api/internal/api"
	"github.com/stellar/ledger-events-api/internal/backfill"
	"github.com/stellar/ledger-events-api/internal/config"
	"github.com/stellar/ledger-events-api/internal/fetcher"
	"github.com/stellar/ledger-events-api/internal/metrics"
	"github.com/stellar/ledger-events-api/internal/queryengine"
	"github.com/stellar/ledger-events-api/internal/store"
	"github.com/stellar/ledger-events-api/internal/tailer"
)

func main() {
	cmd := config.NewRootCommand(run)
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	logger := log.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("log_level", cfg.LogLevel).Warn("unrecognized log level, defaulting to info")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	httpClient := &http.Client{Timeout: 30 * time.Second}

	storeCfg := fetcher.FetchStoreConfig(ctx, httpClient, cfg.MetaURL, logger)

	m := metrics.New(logger)

	s := store.New(logger, int64(cfg.CacheTTLDays)*24*60*60)
	f := fetcher.New(logger, httpClient, cfg.MetaURL, storeCfg)

	bf := backfill.New(logger, s, f, int(cfg.ParallelFetches))
	bf.SetMetrics(m)

	engine := queryengine.New(logger, s, bf)
	engine.SetMetrics(m)

	var startLedger *uint32
	if cfg.HasStartLedger {
		v := cfg.StartLedger
		startLedger = &v
	}

	discoverer := tailer.DiscovererFunc(func(ctx context.Context) (uint32, bool) {
		return fetcher.DiscoverLatestLedger(ctx, httpClient)
	})
	tl := tailer.New(logger, s, f, discoverer, cfg.ParallelFetches)
	go tl.Run(ctx, startLedger)

	go runPercentileLogger(ctx, m)

	server := api.New(logger, s, engine, bf, m, storeCfg.NetworkPassphrase, cmdVersion)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Bind, cfg.Port),
		Handler:      server.NewRouter(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", httpServer.Addr).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// cmdVersion mirrors the root command's own Version field in config.go.
const cmdVersion = "0.1.0"

// runPercentileLogger periodically logs p50/p90/p99 query scan latency
// from the rolling window internal/metrics keeps.
func runPercentileLogger(ctx context.Context, m *metrics.Metrics) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.LogPercentiles()
		}
	}
}
