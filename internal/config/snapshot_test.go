package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImportYAMLRoundTrip(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.Symbols = []string{"BTC", "SOL"}
	cfg.Leverage = 8

	data, err := Export(&cfg, "tuned-15m", DefaultExportOptions())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# KumoTrade Engine Configuration"))

	snap, err := Import(data)
	require.NoError(t, err)

	assert.Equal(t, "tuned-15m", snap.Metadata.Name)
	assert.NotEmpty(t, snap.Metadata.ID)
	assert.Equal(t, SchemaVersion, snap.Metadata.SchemaVersion)
	assert.Equal(t, []string{"BTC", "SOL"}, snap.Engine.Symbols)
	assert.Equal(t, 8, snap.Engine.Leverage)
}

func TestExportImportJSON(t *testing.T) {
	cfg := DefaultEngineConfig()

	data, err := Export(&cfg, "json-export", ExportOptions{Format: FormatJSON, PrettyPrint: true})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(string(data)), "{"))

	snap, err := Import(data)
	require.NoError(t, err)
	assert.Equal(t, "json-export", snap.Metadata.Name)
	assert.Equal(t, cfg.Symbols, snap.Engine.Symbols)
}

func TestExportToFileAndBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshots", "engine.yaml")

	cfg := DefaultEngineConfig()
	cfg.MaxConcurrentTrades = 5

	require.NoError(t, ExportToFile(&cfg, "prod", path, ExportOptions{}))

	snap, err := ImportFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Engine.MaxConcurrentTrades)
}

func TestImportMigratesOldSchema(t *testing.T) {
	doc := []byte(`
metadata:
  id: "abc"
  name: "legacy"
  schema_version: "1.0"
engine:
  schema_version: "1.0"
  symbols: ["BTC"]
  timeframes: ["15m"]
  mode: auto
  strategy: ichimoku
  leverage: 5
  max_concurrent_trades: 3
  tpsl_mode: auto
  atr_mult_sl: 1.5
  atr_mult_tp: 2.0
  use_rsi_filter: true
  rsi_overbought: 75
  rsi_oversold: 25
  symbol_cooldown: 600000000000
  global_cooldown: 120000000000
  max_consecutive_same_direction: 4
  max_consecutive_losses: 3
  pause_after_losses: 1800000000000
  risk_per_trade_pct: 1.0
  candle_window: 250
`)

	snap, err := Import(doc)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, snap.Engine.SchemaVersion)
	assert.NotEmpty(t, snap.Engine.EnabledSignals, "migration should seed signal toggles")
}

func TestImportRejectsBadInput(t *testing.T) {
	_, err := Import(nil)
	require.Error(t, err)

	_, err = Import([]byte("{{{not valid"))
	require.Error(t, err)

	newer := []byte(`
metadata:
  schema_version: "9.0.0"
engine:
  schema_version: "9.0.0"
  symbols: ["BTC"]
  timeframes: ["15m"]
`)
	_, err = Import(newer)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}
