package indicators

import (
	"testing"

	"github.com/ajitpratap0/kumotrade/internal/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeAllBelowMinWindow(t *testing.T) {
	bundle := AnalyzeAll(trendCandles(MinWindow-1, 100, 1, 0.5), market.Timeframe15m)
	require.NotNil(t, bundle)

	assert.Nil(t, bundle.RSI)
	assert.Nil(t, bundle.MACD)
	assert.Nil(t, bundle.ADX)
	assert.Nil(t, bundle.ATR)
	assert.Nil(t, bundle.EMA200)
	assert.Equal(t, MinWindow-1, bundle.Bars)
}

func TestAnalyzeAllMidWindow(t *testing.T) {
	// 100 bars: everything except the EMA200 block computes.
	bundle := AnalyzeAll(trendCandles(100, 100, 1, 0.5), market.Timeframe15m)
	require.NotNil(t, bundle)

	assert.NotNil(t, bundle.RSI)
	assert.NotNil(t, bundle.MACD)
	assert.NotNil(t, bundle.Bollinger)
	assert.NotNil(t, bundle.Volume)
	assert.NotNil(t, bundle.VWAP)
	assert.NotNil(t, bundle.CVD)
	assert.NotNil(t, bundle.ADX)
	assert.NotNil(t, bundle.ATR)
	assert.NotNil(t, bundle.Momentum)
	assert.NotNil(t, bundle.OBV)
	assert.NotNil(t, bundle.ScalpingEMAs)
	assert.Nil(t, bundle.EMA200, "EMA200 needs the long window")
}

func TestAnalyzeAllFullWindow(t *testing.T) {
	bundle := AnalyzeAll(trendCandles(EMA200Window, 100, 1, 0.5), market.Timeframe15m)
	require.NotNil(t, bundle)
	require.NotNil(t, bundle.EMA200)

	// Rising market: price above the long EMA.
	assert.True(t, bundle.EMA200.PriceAbove)
	assert.Equal(t, market.Timeframe15m, bundle.Timeframe)
	assert.Equal(t, bundle.Price, market.LastClose(trendCandles(EMA200Window, 100, 1, 0.5)))
}

func TestBundleAccessorsNilSafe(t *testing.T) {
	var bundle *Bundle
	assert.Equal(t, 0.0, bundle.ADXValue())
	assert.Equal(t, 50.0, bundle.RSIValue())
	assert.Equal(t, 0.0, bundle.ATRPercent())
	assert.Equal(t, "", bundle.VolatilityClass())

	empty := &Bundle{}
	assert.Equal(t, 0.0, empty.ADXValue())
	assert.Equal(t, 50.0, empty.RSIValue())
}

func TestComputeVolumeSpike(t *testing.T) {
	candles := flatCandles(40, 100, 0.5)
	candles[len(candles)-1].Volume = 3000

	result := ComputeVolume(candles, 20)
	require.NotNil(t, result)
	assert.InDelta(t, 3.0, result.Ratio, 1e-9)
	assert.True(t, result.Spike)
}

func TestComputeVolumeQuiet(t *testing.T) {
	result := ComputeVolume(flatCandles(40, 100, 0.5), 20)
	require.NotNil(t, result)
	assert.InDelta(t, 1.0, result.Ratio, 1e-9)
	assert.False(t, result.Spike)
}

func TestComputeVWAPUptrend(t *testing.T) {
	result := ComputeVWAP(trendCandles(80, 100, 1, 0.5), 50)
	require.NotNil(t, result)
	assert.Equal(t, PositionAbove, result.Position)
	assert.Greater(t, result.DistancePct, 0.0)
}

func TestComputeCVDDirections(t *testing.T) {
	up := ComputeCVD(trendCandles(60, 100, 1, 0.5), 20)
	require.NotNil(t, up)
	assert.Equal(t, CrossoverBullish, up.Trend)
	assert.False(t, up.Divergence)

	down := ComputeCVD(trendCandles(60, 300, -1, 0.5), 20)
	require.NotNil(t, down)
	assert.Equal(t, CrossoverBearish, down.Trend)
}

func TestComputeOBVUptrend(t *testing.T) {
	result := ComputeOBV(trendCandles(60, 100, 1, 0.5), 20)
	require.NotNil(t, result)
	assert.Equal(t, CrossoverBullish, result.Trend)
	assert.Greater(t, result.Value, 0.0)
}

func TestComputeMomentum(t *testing.T) {
	up := ComputeMomentum(Closes(trendCandles(40, 100, 1, 0)), 10)
	require.NotNil(t, up)
	assert.InDelta(t, 10.0, up.Value, 1e-9)
	assert.Equal(t, CrossoverBullish, up.Direction)

	flat := ComputeMomentum(Closes(flatCandles(40, 100, 0.5)), 10)
	require.NotNil(t, flat)
	assert.Equal(t, SignalNeutral, flat.Direction)
}

func TestComputeScalpingEMAsStack(t *testing.T) {
	up := ComputeScalpingEMAs(Closes(trendCandles(120, 100, 1, 0)))
	require.NotNil(t, up)
	assert.Equal(t, CrossoverBullish, up.Stacked)

	down := ComputeScalpingEMAs(Closes(trendCandles(120, 400, -1, 0)))
	require.NotNil(t, down)
	assert.Equal(t, CrossoverBearish, down.Stacked)
}
