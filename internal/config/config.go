// Package config defines the server's command-line interface: flags with
// env var fallback and an optional TOML file supplying lower-precedence
// defaults, matching original_source/src/main.rs's clap-derived Cli struct.
package config

import (
	"os"
	"strconv"

	"github.com/pelletier/go-toml"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// DefaultMetaURL is the pubnet ledger metadata bucket used when neither a
// flag, env var, nor config file overrides it.
const DefaultMetaURL = "https://aws-public-blockchain.s3.us-east-2.amazonaws.com/v1.1/stellar/ledgers/pubnet"

// Config holds every resolved setting the server needs to start.
type Config struct {
	Port            uint16
	Bind            string
	MetaURL         string
	StartLedger     uint32
	HasStartLedger  bool
	ParallelFetches uint32
	CacheTTLDays    uint32
	LogLevel        string
}

// fileDefaults is the subset of Config a TOML file may override; only
// fields explicitly present in the file take effect, so a loaded file
// never clobbers a flag/env value.
type fileDefaults struct {
	Port            *uint16 `toml:"port"`
	Bind            *string `toml:"bind"`
	MetaURL         *string `toml:"meta_url"`
	StartLedger     *uint32 `toml:"start_ledger"`
	ParallelFetches *uint32 `toml:"parallel_fetches"`
	CacheTTLDays    *uint32 `toml:"cache_ttl_days"`
	LogLevel        *string `toml:"log_level"`
}

// NewRootCommand builds the root cobra command. run is invoked with the
// fully resolved Config once flags, env, and an optional TOML file have all
// been applied in precedence order (flag > env > file > built-in default).
func NewRootCommand(run func(cfg Config) error) *cobra.Command {
	var (
		configPath      string
		port            uint16
		bind            string
		metaURL         string
		startLedger     uint32
		parallelFetches uint32
		cacheTTLDays    uint32
		logLevel        string
	)

	cmd := &cobra.Command{
		Use:     "ledger-events-api",
		Short:   "HTTP API server for Stellar network contract events",
		Version: "0.1.0",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			defaults, err := loadFileDefaults(configPath)
			if err != nil {
				return err
			}
			applyFileDefaults(flags, defaults)

			return run(Config{
				Port:            port,
				Bind:            bind,
				MetaURL:         metaURL,
				StartLedger:     startLedger,
				HasStartLedger:  startLedger != 0,
				ParallelFetches: parallelFetches,
				CacheTTLDays:    cacheTTLDays,
				LogLevel:        logLevel,
			})
		},
	}

	flags := cmd.Flags()
	flags.Uint16Var(&port, "port", envUint16("PORT", 3000), "port to listen on")
	flags.StringVar(&bind, "bind", envString("BIND_ADDRESS", "0.0.0.0"), "bind address")
	flags.StringVar(&metaURL, "meta-url", envString("META_URL", DefaultMetaURL), "base URL for the ledger metadata store")
	flags.Uint32Var(&startLedger, "start-ledger", envUint32("START_LEDGER", 0), "ledger sequence to start syncing from (if not resuming)")
	flags.Uint32Var(&parallelFetches, "parallel-fetches", envUint32("PARALLEL_FETCHES", 10), "number of ledgers to fetch concurrently during sync")
	flags.Uint32Var(&cacheTTLDays, "cache-ttl-days", envUint32("CACHE_TTL_DAYS", 1), "how long to keep cached ledger data, in days")
	flags.StringVar(&logLevel, "log-level", envString("LOG_LEVEL", "info"), "logrus level: panic, fatal, error, warn, info, debug, trace")
	flags.StringVar(&configPath, "config", "", "optional TOML file supplying lower-precedence defaults")

	return cmd
}

func loadFileDefaults(path string) (fileDefaults, error) {
	if path == "" {
		return fileDefaults{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fileDefaults{}, err
	}
	var defaults fileDefaults
	if err := toml.Unmarshal(data, &defaults); err != nil {
		return fileDefaults{}, err
	}
	return defaults, nil
}

// applyFileDefaults overwrites a flag's value from the TOML file only when
// the flag was left at its built-in default (not set via flag or env),
// preserving the flag/env > file > built-in precedence.
func applyFileDefaults(flags *pflag.FlagSet, defaults fileDefaults) {
	unset := func(flag, env string) bool {
		if flags.Changed(flag) {
			return false
		}
		_, fromEnv := os.LookupEnv(env)
		return !fromEnv
	}
	if defaults.Port != nil && unset("port", "PORT") {
		_ = flags.Set("port", strconv.FormatUint(uint64(*defaults.Port), 10))
	}
	if defaults.Bind != nil && unset("bind", "BIND_ADDRESS") {
		_ = flags.Set("bind", *defaults.Bind)
	}
	if defaults.MetaURL != nil && unset("meta-url", "META_URL") {
		_ = flags.Set("meta-url", *defaults.MetaURL)
	}
	if defaults.StartLedger != nil && unset("start-ledger", "START_LEDGER") {
		_ = flags.Set("start-ledger", strconv.FormatUint(uint64(*defaults.StartLedger), 10))
	}
	if defaults.ParallelFetches != nil && unset("parallel-fetches", "PARALLEL_FETCHES") {
		_ = flags.Set("parallel-fetches", strconv.FormatUint(uint64(*defaults.ParallelFetches), 10))
	}
	if defaults.CacheTTLDays != nil && unset("cache-ttl-days", "CACHE_TTL_DAYS") {
		_ = flags.Set("cache-ttl-days", strconv.FormatUint(uint64(*defaults.CacheTTLDays), 10))
	}
	if defaults.LogLevel != nil && unset("log-level", "LOG_LEVEL") {
		_ = flags.Set("log-level", *defaults.LogLevel)
	}
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envUint16(key string, def uint16) uint16 {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			return uint16(n)
		}
	}
	return def
}

func envUint32(key string, def uint32) uint32 {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			return uint32(n)
		}
	}
	return def
}
