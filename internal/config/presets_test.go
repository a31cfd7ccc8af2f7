package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/kumotrade/internal/market"
)

func TestPresetForKnownTimeframes(t *testing.T) {
	for _, tf := range market.AllTimeframes() {
		p, err := PresetFor(tf)
		require.NoError(t, err, "timeframe %s", tf)
		assert.Equal(t, tf, p.Timeframe)
		assert.Greater(t, p.MinScore, 0)
		assert.Greater(t, p.MinWinProbability, 0.0)
		assert.Less(t, p.MinWinProbability, 1.0)
		assert.Greater(t, p.AnalysisInterval, time.Duration(0))
		assert.Greater(t, p.DefaultTPPct, p.DefaultSLPct)
	}
}

func TestPresetForUnknownTimeframe(t *testing.T) {
	_, err := PresetFor(market.Timeframe("3m"))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestPreset15m(t *testing.T) {
	p, err := PresetFor(market.Timeframe15m)
	require.NoError(t, err)

	assert.Equal(t, 3, p.MinScore)
	assert.Equal(t, 0.65, p.MinWinProbability)
	assert.Equal(t, 2, p.MinConfluence)
	assert.Equal(t, 70.0, p.RSILongMax)
	assert.Equal(t, 15.0, p.ADXMin)
	assert.Equal(t, 1.0, p.MinRRR)
	assert.Equal(t, 60*time.Second, p.AnalysisInterval)
	assert.Equal(t, 2.0, p.DefaultTPPct)
	assert.Equal(t, 1.0, p.DefaultSLPct)
}

func TestScalpingPresetsAreStricter(t *testing.T) {
	p1m, err := PresetFor(market.Timeframe1m)
	require.NoError(t, err)
	p15m, err := PresetFor(market.Timeframe15m)
	require.NoError(t, err)

	assert.Greater(t, p1m.MinScore, p15m.MinScore)
	assert.Greater(t, p1m.MinConfluence, p15m.MinConfluence)
	assert.Greater(t, p1m.MinWinProbability, p15m.MinWinProbability)
	assert.Less(t, p1m.AnalysisInterval, p15m.AnalysisInterval)
	assert.Less(t, p1m.DefaultSLPct, p15m.DefaultSLPct)
}

func TestAllPresetsSortedByDuration(t *testing.T) {
	presets := AllPresets()
	require.NotEmpty(t, presets)

	for i := 1; i < len(presets); i++ {
		assert.Less(t, presets[i-1].Timeframe.Duration(), presets[i].Timeframe.Duration())
	}
}

func TestEffectiveInterval(t *testing.T) {
	cfg := DefaultEngineConfig()

	interval, err := cfg.EffectiveInterval(market.Timeframe15m)
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, interval)

	cfg.AnalysisInterval = 10 * time.Second
	interval, err = cfg.EffectiveInterval(market.Timeframe15m)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, interval)
}

func TestEffectiveMinRRR(t *testing.T) {
	cfg := DefaultEngineConfig()
	p, err := PresetFor(market.Timeframe15m)
	require.NoError(t, err)

	assert.Equal(t, 1.0, cfg.EffectiveMinRRR(p))

	cfg.MinRRR = 1.5
	assert.Equal(t, 1.5, cfg.EffectiveMinRRR(p))
}
