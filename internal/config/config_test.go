package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRootCommandDefaults(t *testing.T) {
	var got Config
	cmd := NewRootCommand(func(cfg Config) error {
		got = cfg
		return nil
	})
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	require.Equal(t, uint16(3000), got.Port)
	require.Equal(t, "0.0.0.0", got.Bind)
	require.Equal(t, DefaultMetaURL, got.MetaURL)
	require.False(t, got.HasStartLedger)
	require.Equal(t, uint32(10), got.ParallelFetches)
	require.Equal(t, uint32(1), got.CacheTTLDays)
	require.Equal(t, "info", got.LogLevel)
}

func TestNewRootCommandFlagsOverrideDefaults(t *testing.T) {
	var got Config
	cmd := NewRootCommand(func(cfg Config) error {
		got = cfg
		return nil
	})
	cmd.SetArgs([]string{"--port=8080", "--start-ledger=58000000", "--log-level=debug"})
	require.NoError(t, cmd.Execute())

	require.Equal(t, uint16(8080), got.Port)
	require.Equal(t, uint32(58000000), got.StartLedger)
	require.True(t, got.HasStartLedger)
	require.Equal(t, "debug", got.LogLevel)
}

func TestNewRootCommandEnvOverridesDefault(t *testing.T) {
	t.Setenv("PORT", "9999")
	os.Unsetenv("LOG_LEVEL")

	var got Config
	cmd := NewRootCommand(func(cfg Config) error {
		got = cfg
		return nil
	})
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	require.Equal(t, uint16(9999), got.Port)
}

func TestApplyFileDefaultsOnlyFillsUnsetFlags(t *testing.T) {
	var got Config
	cmd := NewRootCommand(func(cfg Config) error {
		got = cfg
		return nil
	})

	dir := t.TempDir()
	path := dir + "/config.toml"
	require.NoError(t, os.WriteFile(path, []byte(`port = 4242
log_level = "warn"
`), 0o644))

	cmd.SetArgs([]string{"--config=" + path, "--port=7000"})
	require.NoError(t, cmd.Execute())

	// Flag value wins over file for port; file fills the unset log-level.
	require.Equal(t, uint16(7000), got.Port)
	require.Equal(t, "warn", got.LogLevel)
}
