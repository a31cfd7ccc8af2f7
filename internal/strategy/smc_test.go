package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/kumotrade/internal/config"
	"github.com/ajitpratap0/kumotrade/internal/indicators"
	"github.com/ajitpratap0/kumotrade/internal/market"
)

// breakAndSweepWindow embeds a swing high at 102 that the head breaks,
// a swept swing low at 98, and an early spike anchoring the range top.
func breakAndSweepWindow() []market.Candle {
	candles := flatWindow(60, 100, 0.4)
	candles[10].High = 109.5

	candles[40].Low = 98.0

	candles[45].High = 102.0
	candles[45].Close = 100.2

	candles[57].Low = 97.5
	candles[57].Close = 100.1

	candles[59].High = 102.8
	candles[59].Low = 99.7
	candles[59].Close = 102.5
	return candles
}

func TestDetectSMCFeaturesFindsStructure(t *testing.T) {
	f := DetectSMCFeatures(breakAndSweepWindow())
	require.NotNil(t, f)

	require.NotNil(t, f.Break)
	assert.Equal(t, market.DirectionLong, f.Break.Direction)
	assert.InDelta(t, 102.0, f.Break.Level, 1e-9)

	require.Len(t, f.Sweeps, 1)
	assert.Equal(t, market.DirectionLong, f.Sweeps[0].Direction)
	assert.InDelta(t, 98.0, f.Sweeps[0].Level, 1e-9)

	assert.InDelta(t, 109.5, f.RangeHigh, 1e-9)
	assert.InDelta(t, 97.5, f.RangeLow, 1e-9)
	assert.Equal(t, ZoneEquilibrium, f.Zone)
	assert.Empty(t, f.OrderBlocks)
	assert.Empty(t, f.Gaps)
}

func TestSMCBreakAndSweepGoLong(t *testing.T) {
	bundle := &indicators.Bundle{
		RSI:  &indicators.RSIResult{Value: 48, Signal: indicators.SignalNeutral},
		MACD: &indicators.MACDResult{Histogram: 0.5},
		CVD:  &indicators.CVDResult{Trend: indicators.CrossoverBullish},
	}

	s := NewSMCStrategy()
	sig, err := s.Analyze(breakAndSweepWindow(), market.Timeframe15m, bundle, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, sig.Score)
	assert.Equal(t, market.DirectionLong, sig.Direction)
	assert.Equal(t, 2, sig.Confluence)
	assert.Contains(t, sig.Reasons, "bullish break of structure")
	assert.Contains(t, sig.Reasons, "liquidity sweep below")

	require.NotNil(t, sig.SuggestedSL)
	assert.InDelta(t, 98.0, *sig.SuggestedSL, 1e-9)
	assert.Equal(t, LevelSourceStructure, sig.SLSource)

	require.NotNil(t, sig.SuggestedTP)
	assert.InDelta(t, 109.5, *sig.SuggestedTP, 1e-9)
	assert.Equal(t, LevelSourceStructure, sig.TPSource)
}

func TestSMCRejectsRSIOutsideBand(t *testing.T) {
	bundle := &indicators.Bundle{
		RSI: &indicators.RSIResult{Value: 80, Signal: indicators.SignalOverbought},
	}

	s := NewSMCStrategy()
	sig, err := s.Analyze(breakAndSweepWindow(), market.Timeframe15m, bundle, nil)
	require.NoError(t, err)

	assert.False(t, sig.HasDirection())
	assert.Contains(t, sig.Reasons, "rsi 80.0 outside 25..75 band")
}

func TestSMCSessionFilter(t *testing.T) {
	cfg := config.DefaultEngineConfig()
	cfg.EnabledSignals = append(cfg.EnabledSignals, SignalSessions)
	bundle := &indicators.Bundle{
		RSI: &indicators.RSIResult{Value: 48, Signal: indicators.SignalNeutral},
	}

	// The default window head lands in the Asia session.
	candles := breakAndSweepWindow()
	s := NewSMCStrategy()
	sig, err := s.Analyze(candles, market.Timeframe15m, bundle, &cfg)
	require.NoError(t, err)
	assert.False(t, sig.HasDirection())
	assert.Contains(t, sig.Reasons, "asia session filtered")

	// Same structure during London trades through.
	candles[59].Timestamp = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC).UnixMilli()
	sig, err = s.Analyze(candles, market.Timeframe15m, bundle, &cfg)
	require.NoError(t, err)
	assert.Equal(t, market.DirectionLong, sig.Direction)
}

func TestDetectOrderBlockAndTradeIt(t *testing.T) {
	candles := flatWindow(60, 100, 0.4)
	// A bearish candle followed by a two-bar displacement up.
	candles[30].Open = 100.6
	candles[30].High = 100.7
	candles[30].Low = 99.9
	candles[30].Close = 100.0

	candles[31].High = 101.0
	candles[31].Low = 99.9
	candles[31].Close = 100.9

	candles[32].Open = 100.9
	candles[32].High = 101.9
	candles[32].Low = 100.8
	candles[32].Close = 101.8

	f := DetectSMCFeatures(candles)
	require.NotNil(t, f)
	require.Len(t, f.OrderBlocks, 1)
	ob := f.OrderBlocks[0]
	assert.Equal(t, market.DirectionLong, ob.Direction)
	assert.InDelta(t, 100.7, ob.High, 1e-9)
	assert.InDelta(t, 99.9, ob.Low, 1e-9)
	assert.False(t, ob.Invalidated)
	assert.Equal(t, ZoneDiscount, f.Zone)

	bundle := &indicators.Bundle{
		RSI:  &indicators.RSIResult{Value: 50, Signal: indicators.SignalNeutral},
		MACD: &indicators.MACDResult{Histogram: 0.2},
	}
	s := NewSMCStrategy()
	sig, err := s.Analyze(candles, market.Timeframe15m, bundle, nil)
	require.NoError(t, err)

	// Block 2 plus discount 1 clears the preset minimum.
	assert.Equal(t, 3, sig.Score)
	assert.Equal(t, market.DirectionLong, sig.Direction)
	assert.Contains(t, sig.Reasons, "price in bullish order block")

	// The block low sits 0.1% away, below the minimum stop distance;
	// the range low takes over.
	require.NotNil(t, sig.SuggestedSL)
	assert.InDelta(t, 99.6, *sig.SuggestedSL, 1e-9)
	require.NotNil(t, sig.SuggestedTP)
	assert.InDelta(t, 101.9, *sig.SuggestedTP, 1e-9)
}

func TestDetectUnfilledImbalance(t *testing.T) {
	candles := flatWindow(60, 100, 0.4)
	candles[45].Close = 100.3

	// Gap-up bar: its low never overlaps the bar two back.
	candles[46].Open = 100.9
	candles[46].High = 101.6
	candles[46].Low = 100.9
	candles[46].Close = 101.5

	// Price hovers inside the imbalance without filling it.
	for i := 47; i < 60; i++ {
		candles[i].Open = 100.7
		candles[i].High = 101.0
		candles[i].Low = 100.5
		candles[i].Close = 100.7
	}

	f := DetectSMCFeatures(candles)
	require.NotNil(t, f)
	require.NotEmpty(t, f.Gaps)
	gap := f.Gaps[0]
	assert.Equal(t, market.DirectionLong, gap.Direction)
	assert.InDelta(t, 100.9, gap.Top, 1e-9)
	assert.InDelta(t, 100.4, gap.Bottom, 1e-9)
	assert.False(t, gap.Filled)

	// One point of evidence is not enough to trade.
	s := NewSMCStrategy()
	sig, err := s.Analyze(candles, market.Timeframe15m, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sig.Score)
	assert.False(t, sig.HasDirection())
	assert.Contains(t, sig.Reasons, "price in bullish imbalance")
}

func TestSMCBearishBreakInPremiumGoesShort(t *testing.T) {
	candles := flatWindow(60, 100, 0.4)
	candles[10].Low = 88.0

	candles[45].Low = 98.0

	candles[59].Low = 97.3
	candles[59].Close = 97.5

	bundle := &indicators.Bundle{
		RSI:  &indicators.RSIResult{Value: 45, Signal: indicators.SignalNeutral},
		MACD: &indicators.MACDResult{Histogram: -0.4},
	}
	s := NewSMCStrategy()
	sig, err := s.Analyze(candles, market.Timeframe15m, bundle, nil)
	require.NoError(t, err)

	assert.Equal(t, -3, sig.Score)
	assert.Equal(t, market.DirectionShort, sig.Direction)
	assert.Equal(t, 2, sig.Confluence)
	assert.Contains(t, sig.Reasons, "bearish break of structure")
	assert.Contains(t, sig.Reasons, "premium zone")

	require.NotNil(t, sig.SuggestedSL)
	assert.InDelta(t, 100.4, *sig.SuggestedSL, 1e-9)
	assert.Equal(t, LevelSourceStructure, sig.SLSource)

	// The range low sits 9.7% away, past the distance cap.
	assert.Nil(t, sig.SuggestedTP)
}

func TestSMCShortWindowReportsReason(t *testing.T) {
	s := NewSMCStrategy()
	sig, err := s.Analyze(flatWindow(10, 100, 0.4), market.Timeframe15m, nil, nil)
	require.NoError(t, err)

	assert.False(t, sig.HasDirection())
	require.NotEmpty(t, sig.Reasons)
	assert.Contains(t, sig.Reasons[0], "below structure minimum")
}

func TestZoneOf(t *testing.T) {
	assert.Equal(t, ZoneDiscount, zoneOf(96.5, 105, 95))
	assert.Equal(t, ZonePremium, zoneOf(104, 105, 95))
	assert.Equal(t, ZoneEquilibrium, zoneOf(100, 105, 95))
	assert.Equal(t, ZoneEquilibrium, zoneOf(100, 100, 100))
}

func TestSessionOf(t *testing.T) {
	cases := []struct {
		hour int
		want string
	}{
		{2, SessionAsia},
		{7, SessionLondon},
		{9, SessionLondon},
		{13, SessionNewYork},
		{20, SessionNewYork},
		{21, SessionAsia},
		{23, SessionAsia},
	}
	for _, tc := range cases {
		ts := time.Date(2024, 3, 5, tc.hour, 15, 0, 0, time.UTC)
		assert.Equal(t, tc.want, sessionOf(ts), "hour %d", tc.hour)
	}
}

func TestSwingPointsStrictFractals(t *testing.T) {
	candles := flatWindow(20, 100, 0.4)
	candles[8].High = 103
	candles[12].Low = 96

	highs, lows := swingPoints(candles)
	assert.Equal(t, []int{8}, highs)
	assert.Equal(t, []int{12}, lows)
}
