package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/kumotrade/internal/indicators"
	"github.com/ajitpratap0/kumotrade/internal/market"
)

// squeezeReleaseWindow is 80 quiet bars followed by a two-bar expansion.
// The second-to-last close keeps the previous 20-bar view inside the
// Keltner channel while the head view breaks out of it.
func squeezeReleaseWindow(up bool) []market.Candle {
	candles := flatWindow(80, 100, 0.5)
	step := 3.0
	if !up {
		step = -3.0
	}
	c1 := market.Candle{
		Timestamp: testBaseTS + 80*60_000,
		Open:      100,
		Close:     100 + step,
		Volume:    1000,
	}
	c2 := market.Candle{
		Timestamp: testBaseTS + 81*60_000,
		Open:      100 + step,
		Close:     100 + 2*step,
		Volume:    1000,
	}
	if up {
		c1.High, c1.Low = c1.Close+0.5, c1.Open-0.5
		c2.High, c2.Low = c2.Close+0.5, c2.Open-0.5
	} else {
		c1.High, c1.Low = c1.Open+0.5, c1.Close-0.5
		c2.High, c2.Low = c2.Open+0.5, c2.Close-0.5
	}
	return append(candles, c1, c2)
}

func TestSqueezeQuietWindowStaysOut(t *testing.T) {
	s := NewSqueezeStrategy()
	sig, err := s.Analyze(flatWindow(80, 100, 0.5), market.Timeframe15m, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, sig.Score)
	assert.False(t, sig.HasDirection())
	assert.Contains(t, sig.Reasons, "squeeze building")
	assert.Nil(t, sig.SuggestedSL)
	assert.Nil(t, sig.SuggestedTP)
}

func TestSqueezeReleaseBreakoutLong(t *testing.T) {
	candles := squeezeReleaseWindow(true)
	bundle := &indicators.Bundle{
		Momentum: &indicators.MomentumResult{Value: 6, Direction: indicators.CrossoverBullish},
		Volume:   &indicators.VolumeResult{Spike: true},
	}

	s := NewSqueezeStrategy()
	sig, err := s.Analyze(candles, market.Timeframe15m, bundle, nil)
	require.NoError(t, err)

	assert.Equal(t, 7, sig.Score)
	assert.Equal(t, market.DirectionLong, sig.Direction)
	assert.Contains(t, sig.Reasons, "squeeze release with breakout above")

	// Stop at the middle band: (18*100 + 103 + 106) / 20.
	require.NotNil(t, sig.SuggestedSL)
	assert.InDelta(t, 100.45, *sig.SuggestedSL, 1e-6)
	assert.Equal(t, LevelSourceBollinger, sig.SLSource)

	// Target one band-width above entry.
	require.NotNil(t, sig.SuggestedTP)
	assert.Greater(t, *sig.SuggestedTP, 111.5)
	assert.Less(t, *sig.SuggestedTP, 112.0)
	assert.Equal(t, LevelSourceMeasuredMove, sig.TPSource)
}

func TestSqueezeReleaseBreakoutShort(t *testing.T) {
	candles := squeezeReleaseWindow(false)
	bundle := &indicators.Bundle{
		Momentum: &indicators.MomentumResult{Value: -6, Direction: indicators.CrossoverBearish},
		Volume:   &indicators.VolumeResult{Spike: true},
	}

	s := NewSqueezeStrategy()
	sig, err := s.Analyze(candles, market.Timeframe15m, bundle, nil)
	require.NoError(t, err)

	assert.Equal(t, -7, sig.Score)
	assert.Equal(t, market.DirectionShort, sig.Direction)
	assert.Contains(t, sig.Reasons, "squeeze release with breakout below")

	require.NotNil(t, sig.SuggestedSL)
	assert.InDelta(t, 99.55, *sig.SuggestedSL, 1e-6)

	require.NotNil(t, sig.SuggestedTP)
	assert.Greater(t, *sig.SuggestedTP, 88.0)
	assert.Less(t, *sig.SuggestedTP, 88.5)
	assert.Equal(t, LevelSourceMeasuredMove, sig.TPSource)
}

func TestSqueezeReleaseWithoutMomentumStaysOut(t *testing.T) {
	candles := squeezeReleaseWindow(true)

	s := NewSqueezeStrategy()
	sig, err := s.Analyze(candles, market.Timeframe15m, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, sig.Score)
	assert.False(t, sig.HasDirection())
}

func TestSqueezeShortWindowReportsReason(t *testing.T) {
	s := NewSqueezeStrategy()
	sig, err := s.Analyze(flatWindow(10, 100, 0.5), market.Timeframe15m, nil, nil)
	require.NoError(t, err)

	assert.False(t, sig.HasDirection())
	require.NotEmpty(t, sig.Reasons)
	assert.Contains(t, sig.Reasons[0], "bollinger bands unavailable")
}
