package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeMACDUptrend(t *testing.T) {
	closes := Closes(trendCandles(150, 100, 1, 0))
	result := ComputeMACD(closes, 12, 26, 9)
	require.NotNil(t, result)

	// Sustained rise keeps the fast EMA above the slow EMA.
	assert.Greater(t, result.Value, 0.0)
	assert.InDelta(t, result.Value-result.Signal, result.Histogram, 1e-9)
}

func TestComputeMACDFreshReversal(t *testing.T) {
	// Long decline then a sharp recovery: MACD must sit above its
	// signal line while the recovery is young.
	candles := trendCandles(100, 300, -1, 0)
	candles = append(candles, trendCandles(25, 200, 3, 0)...)
	for i := range candles {
		candles[i].Timestamp = 1700000000000 + int64(i)*60000
	}

	result := ComputeMACD(Closes(candles), 12, 26, 9)
	require.NotNil(t, result)
	assert.Greater(t, result.Histogram, 0.0)
}

func TestComputeMACDValidation(t *testing.T) {
	closes := Closes(trendCandles(150, 100, 1, 0))

	assert.Nil(t, ComputeMACD(closes, 26, 12, 9), "fast must be below slow")
	assert.Nil(t, ComputeMACD(closes[:20], 12, 26, 9), "window too short")
	assert.Nil(t, ComputeMACD(closes, 0, 26, 9))
}
