package indicators

import (
	"testing"

	"github.com/ajitpratap0/kumotrade/internal/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIchimokuPeriodsFor(t *testing.T) {
	fast := IchimokuPeriodsFor(market.Timeframe5m)
	classic := IchimokuPeriodsFor(market.Timeframe15m)
	slow := IchimokuPeriodsFor(market.Timeframe4h)

	assert.Less(t, fast.Kijun, classic.Kijun)
	assert.Equal(t, 26, classic.Kijun)
	assert.Greater(t, slow.SenkouB, classic.SenkouB)
}

func TestComputeIchimokuUptrend(t *testing.T) {
	candles := trendCandles(250, 100, 1, 0.5)
	state := ComputeIchimoku(candles, IchimokuPeriodsFor(market.Timeframe15m))
	require.NotNil(t, state)

	// Steady rise: price above the cloud, fast line above slow, span A
	// above span B, close above the close 26 bars back.
	assert.Greater(t, state.Price, state.CloudTop)
	assert.Greater(t, state.Tenkan, state.Kijun)
	assert.True(t, state.BullishCloud)
	assert.True(t, state.ChikouAbovePrice)
	assert.True(t, state.ChikouAboveCloud)
}

func TestComputeIchimokuDowntrend(t *testing.T) {
	candles := trendCandles(250, 500, -1, 0.5)
	state := ComputeIchimoku(candles, IchimokuPeriodsFor(market.Timeframe15m))
	require.NotNil(t, state)

	assert.Less(t, state.Price, state.CloudBottom)
	assert.Less(t, state.Tenkan, state.Kijun)
	assert.False(t, state.BullishCloud)
	assert.True(t, state.ChikouBelowPrice)
}

func TestComputeIchimokuCloudOrientation(t *testing.T) {
	candles := trendCandles(250, 100, 1, 0.5)
	state := ComputeIchimoku(candles, IchimokuPeriodsFor(market.Timeframe15m))
	require.NotNil(t, state)

	assert.GreaterOrEqual(t, state.CloudTop, state.CloudBottom)
}

func TestComputeIchimokuShortWindow(t *testing.T) {
	periods := IchimokuPeriodsFor(market.Timeframe15m)
	candles := trendCandles(periods.MinBars()-1, 100, 1, 0.5)
	assert.Nil(t, ComputeIchimoku(candles, periods))
}
