package grader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/kumotrade/internal/config"
	"github.com/ajitpratap0/kumotrade/internal/indicators"
	"github.com/ajitpratap0/kumotrade/internal/market"
	"github.com/ajitpratap0/kumotrade/internal/strategy"
)

func preset15(t *testing.T) config.TimeframePreset {
	t.Helper()
	p, err := config.PresetFor(market.Timeframe15m)
	require.NoError(t, err)
	return p
}

func mkSignal(dir market.Direction, score, confluence int) *strategy.RawSignal {
	abs := score
	if abs < 0 {
		abs = -abs
	}
	return &strategy.RawSignal{
		Strategy:   strategy.NameIchimoku,
		Timeframe:  market.Timeframe15m,
		Direction:  dir,
		Score:      score,
		AbsScore:   abs,
		Confluence: confluence,
	}
}

func TestGradeStrongLongIsTradeableA(t *testing.T) {
	bundle := &indicators.Bundle{
		RSI:    &indicators.RSIResult{Value: 55, Signal: indicators.SignalNeutral},
		ADX:    &indicators.ADXResult{Value: 22, Direction: indicators.CrossoverBullish},
		ATR:    &indicators.ATRResult{Value: 1.2, Percent: 1.2, Volatility: indicators.VolatilityNormal},
		Volume: &indicators.VolumeResult{Ratio: 1.1},
		CVD:    &indicators.CVDResult{Trend: indicators.CrossoverBullish},
	}

	g := NewGrader()
	out := g.Grade(Input{
		Signal: mkSignal(market.DirectionLong, 7, 3),
		Bundle: bundle,
		Preset: preset15(t),
	})

	assert.True(t, out.Tradeable)
	assert.Empty(t, out.RejectReason)
	assert.Equal(t, GradeA, out.Grade)
	assert.Equal(t, 94, out.QualityScore)
	assert.InDelta(t, winProbabilityCap, out.WinProbability, 1e-9)
}

func TestRunFiltersOrderAndReasons(t *testing.T) {
	g := NewGrader()
	preset := preset15(t)

	cases := []struct {
		name       string
		sig        *strategy.RawSignal
		bundle     *indicators.Bundle
		confluence int
		winProb    float64
		wantOK     bool
		wantReason string
	}{
		{
			name:       "no direction",
			sig:        mkSignal("", 5, 3),
			confluence: 3,
			winProb:    0.9,
			wantReason: "no direction",
		},
		{
			name:       "score below minimum",
			sig:        mkSignal(market.DirectionLong, 2, 5),
			confluence: 5,
			winProb:    0.9,
			wantReason: "score 2 below minimum 3",
		},
		{
			name:       "confluence below minimum",
			sig:        mkSignal(market.DirectionLong, 4, 1),
			confluence: 1,
			winProb:    0.9,
			wantReason: "confluence 1 below minimum 2",
		},
		{
			name:       "confluence relaxed at top score",
			sig:        mkSignal(market.DirectionLong, 7, 1),
			confluence: 1,
			winProb:    0.9,
			wantOK:     true,
		},
		{
			name:       "rsi above long maximum",
			sig:        mkSignal(market.DirectionLong, 5, 3),
			bundle:     &indicators.Bundle{RSI: &indicators.RSIResult{Value: 72}},
			confluence: 3,
			winProb:    0.9,
			wantReason: "rsi 72.0 above long maximum 70",
		},
		{
			name:       "rsi below short band",
			sig:        mkSignal(market.DirectionShort, -5, 3),
			bundle:     &indicators.Bundle{RSI: &indicators.RSIResult{Value: 15}},
			confluence: 3,
			winProb:    0.9,
			wantReason: "rsi 15.0 outside short band 20..85",
		},
		{
			name:       "rsi above short band",
			sig:        mkSignal(market.DirectionShort, -5, 3),
			bundle:     &indicators.Bundle{RSI: &indicators.RSIResult{Value: 88}},
			confluence: 3,
			winProb:    0.9,
			wantReason: "rsi 88.0 outside short band 20..85",
		},
		{
			name:       "adx below minimum",
			sig:        mkSignal(market.DirectionLong, 5, 3),
			bundle:     &indicators.Bundle{ADX: &indicators.ADXResult{Value: 10}},
			confluence: 3,
			winProb:    0.9,
			wantReason: "adx 10.0 below minimum 15",
		},
		{
			name:       "win probability below minimum",
			sig:        mkSignal(market.DirectionLong, 5, 3),
			confluence: 3,
			winProb:    0.60,
			wantReason: "win probability 0.60 below minimum 0.65",
		},
		{
			name: "flow divergence against direction",
			sig:  mkSignal(market.DirectionLong, 5, 3),
			bundle: &indicators.Bundle{
				CVD: &indicators.CVDResult{Trend: indicators.CrossoverBearish, Divergence: true},
			},
			confluence: 3,
			winProb:    0.9,
			wantReason: "flow diverges from price",
		},
		{
			name: "divergence with flow still passes",
			sig:  mkSignal(market.DirectionLong, 5, 3),
			bundle: &indicators.Bundle{
				CVD: &indicators.CVDResult{Trend: indicators.CrossoverBullish, Divergence: true},
			},
			confluence: 3,
			winProb:    0.9,
			wantOK:     true,
		},
		{
			name:       "volume below liquidity floor",
			sig:        mkSignal(market.DirectionLong, 5, 3),
			bundle:     &indicators.Bundle{Volume: &indicators.VolumeResult{Ratio: 0.2}},
			confluence: 3,
			winProb:    0.9,
			wantReason: "volume 0.20 of average below liquidity floor",
		},
		{
			name:       "low volatility blocks mid score",
			sig:        mkSignal(market.DirectionLong, 4, 3),
			bundle:     &indicators.Bundle{ATR: &indicators.ATRResult{Volatility: indicators.VolatilityLow}},
			confluence: 3,
			winProb:    0.9,
			wantReason: "low volatility for score 4",
		},
		{
			name:       "low volatility tolerated on strong score",
			sig:        mkSignal(market.DirectionLong, 5, 3),
			bundle:     &indicators.Bundle{ATR: &indicators.ATRResult{Volatility: indicators.VolatilityLow}},
			confluence: 3,
			winProb:    0.9,
			wantOK:     true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := g.runFilters(tc.sig, tc.bundle, preset, tc.confluence, tc.winProb)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantReason, reason)
		})
	}
}

func TestGradeMTFAgreementCountsAsConfluence(t *testing.T) {
	g := NewGrader()
	preset := preset15(t)

	out := g.Grade(Input{Signal: mkSignal(market.DirectionLong, 4, 1), Preset: preset})
	assert.False(t, out.Tradeable)
	assert.Equal(t, GradeF, out.Grade)
	assert.Equal(t, "confluence 1 below minimum 2", out.RejectReason)

	out = g.Grade(Input{Signal: mkSignal(market.DirectionLong, 4, 1), Preset: preset, MTFAgreement: true})
	assert.True(t, out.Tradeable)
	assert.Equal(t, GradeB, out.Grade)
	assert.Equal(t, 54, out.QualityScore)
	assert.InDelta(t, 0.78, out.WinProbability, 1e-9)
}

func TestGradeFundingCarryLiftsProbability(t *testing.T) {
	g := NewGrader()
	preset := preset15(t)
	sig := mkSignal(market.DirectionLong, 4, 2)

	flat := g.Grade(Input{Signal: sig, Preset: preset})
	assert.Equal(t, GradeB, flat.Grade)
	assert.Equal(t, 54, flat.QualityScore)
	assert.InDelta(t, 0.78, flat.WinProbability, 1e-9)

	rate := -0.0006
	carried := g.Grade(Input{Signal: sig, Preset: preset, FundingRate: &rate})
	assert.Equal(t, GradeA, carried.Grade)
	assert.Equal(t, 61, carried.QualityScore)
	assert.InDelta(t, 0.87, carried.WinProbability, 1e-9)
	assert.True(t, carried.Tradeable)
}

func TestWinProbabilityMonotoneInScore(t *testing.T) {
	prev := 0.0
	for abs := 0; abs <= 9; abs++ {
		_, _, p := computeGrading(abs, 2, 0)
		assert.GreaterOrEqual(t, p, prev, "absScore %d", abs)
		prev = p
	}
}

func TestWinProbabilityMonotoneInConfluence(t *testing.T) {
	prev := 0.0
	for conf := 0; conf <= 6; conf++ {
		_, _, p := computeGrading(4, conf, 0)
		assert.GreaterOrEqual(t, p, prev, "confluence %d", conf)
		prev = p
	}
}

func TestGradingBounds(t *testing.T) {
	for abs := 0; abs <= 10; abs++ {
		for conf := 0; conf <= 6; conf++ {
			for _, fund := range []float64{-1, 0, 1, 2} {
				quality, grade, p := computeGrading(abs, conf, fund)
				assert.GreaterOrEqual(t, quality, 0)
				assert.LessOrEqual(t, quality, 100)
				assert.GreaterOrEqual(t, p, 0.5)
				assert.LessOrEqual(t, p, winProbabilityCap)
				assert.NotEqual(t, GradeF, grade)
			}
		}
	}
}

func TestGradeBands(t *testing.T) {
	cases := []struct {
		quality int
		want    Grade
	}{
		{94, GradeA}, {60, GradeA},
		{59, GradeB}, {40, GradeB},
		{39, GradeC}, {20, GradeC},
		{19, GradeD}, {0, GradeD},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, gradeFor(tc.quality), "quality %d", tc.quality)
	}
}

func TestGradeRank(t *testing.T) {
	assert.Greater(t, GradeA.Rank(), GradeB.Rank())
	assert.Greater(t, GradeB.Rank(), GradeC.Rank())
	assert.Greater(t, GradeC.Rank(), GradeD.Rank())
	assert.Greater(t, GradeD.Rank(), GradeF.Rank())
}

func TestFundingBonusFor(t *testing.T) {
	rate := func(v float64) *float64 { return &v }

	cases := []struct {
		name string
		dir  market.Direction
		rate *float64
		want float64
	}{
		{"long strong favourable", market.DirectionLong, rate(-0.0006), 2},
		{"long mild favourable", market.DirectionLong, rate(-0.0002), 1},
		{"long strong adverse", market.DirectionLong, rate(0.0006), -1},
		{"long negligible", market.DirectionLong, rate(0.00005), 0},
		{"short strong favourable", market.DirectionShort, rate(0.0006), 2},
		{"short strong adverse", market.DirectionShort, rate(-0.0006), -1},
		{"unknown rate", market.DirectionLong, nil, 0},
		{"no direction", "", rate(0.0006), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, fundingBonusFor(tc.dir, tc.rate))
		})
	}
}

func TestGradeNilSignal(t *testing.T) {
	out := NewGrader().Grade(Input{})
	assert.Equal(t, GradeF, out.Grade)
	assert.False(t, out.Tradeable)
	assert.Equal(t, "no signal", out.RejectReason)
}

func TestGradeRejectedSignalKeepsQuality(t *testing.T) {
	g := NewGrader()
	out := g.Grade(Input{
		Signal: mkSignal(market.DirectionLong, 7, 3),
		Bundle: &indicators.Bundle{RSI: &indicators.RSIResult{Value: 72}},
		Preset: preset15(t),
	})

	assert.False(t, out.Tradeable)
	assert.Equal(t, GradeF, out.Grade)
	assert.Equal(t, "rsi 72.0 above long maximum 70", out.RejectReason)
	// The quality read survives for logging and events.
	assert.Equal(t, 94, out.QualityScore)
	assert.InDelta(t, winProbabilityCap, out.WinProbability, 1e-9)
}
