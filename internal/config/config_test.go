package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30*time.Second, cfg.Oracle.PollInterval.Duration)
	assert.Equal(t, 10*time.Second, cfg.Scanner.Interval.Duration)
	assert.False(t, cfg.Scanner.AutoLiquidate)
	assert.True(t, cfg.Settlement.DryRun)

	require.Len(t, cfg.Oracle.Sources, 4)
	totalWeight := 0.0
	for _, src := range cfg.Oracle.Sources {
		totalWeight += src.Weight
	}
	assert.InDelta(t, 1.0, totalWeight, 1e-9)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "oracle"
log_level = "debug"

[oracle]
poll_interval = "15s"

[[oracle.sources]]
name = "Test Feed"
weight = 0.5
endpoint = "http://localhost:9999/price"
enabled = true

[scanner]
interval = "5s"
auto_liquidate = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("PERPD_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("PERPD_SCANNER_AUTO_LIQUIDATE", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "oracle", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 15*time.Second, cfg.Oracle.PollInterval.Duration)
	assert.Equal(t, 5*time.Second, cfg.Scanner.Interval.Duration)

	// TOML source list replaces the defaults.
	require.Len(t, cfg.Oracle.Sources, 1)
	assert.Equal(t, "Test Feed", cfg.Oracle.Sources[0].Name)

	// Env overrides win over both defaults and file values.
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.False(t, cfg.Scanner.AutoLiquidate)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.Oracle.Sources = nil
	cfg.Scanner.Interval = duration{0}
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "turbo"`)
	assert.Contains(t, err.Error(), "at least one source must be enabled")
	assert.Contains(t, err.Error(), "scanner: interval must be positive")
	assert.Contains(t, err.Error(), "redis: addr must not be empty")
}

func TestValidateLiquidateModeNeedsChain(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "liquidate"
	cfg.Settlement.DryRun = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc_url is required")
	assert.Contains(t, err.Error(), "contract_address is required")

	cfg.Settlement.RPCURL = "https://rpc.example.org"
	cfg.Settlement.ContractAddress = "0x0000000000000000000000000000000000000001"
	cfg.Settlement.PrivateKey = "deadbeef"
	assert.NoError(t, cfg.Validate())

	// Dry run needs no chain credentials at all.
	cfg2 := Defaults()
	cfg2.Mode = "liquidate"
	assert.NoError(t, cfg2.Validate())
}
