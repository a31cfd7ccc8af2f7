// Package grader scores strategy output against per-timeframe
// thresholds and decides whether a signal is tradeable. The grade and
// win probability feed the opportunity ranking; the ordered filter
// chain produces the reject reason surfaced in analysis events.
package grader

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/kumotrade/internal/config"
	"github.com/ajitpratap0/kumotrade/internal/indicators"
	"github.com/ajitpratap0/kumotrade/internal/market"
	"github.com/ajitpratap0/kumotrade/internal/strategy"
)

// Grade is the letter quality band. F is reserved for signals that
// failed a filter; graded-but-weak signals bottom out at D.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// Rank orders grades for opportunity sorting, best first.
func (g Grade) Rank() int {
	switch g {
	case GradeA:
		return 4
	case GradeB:
		return 3
	case GradeC:
		return 2
	case GradeD:
		return 1
	default:
		return 0
	}
}

const (
	winProbabilityCap = 0.92
	fundingWeight     = 0.025
	rsiShortMax       = 85.0

	// Head-bar volume under this fraction of the rolling mean reads
	// as a dead book.
	minLiquidityRatio = 0.3

	// Funding-rate magnitudes, per interval, separating negligible
	// from mild from strong carry.
	fundingMild   = 0.0001
	fundingStrong = 0.0005
)

// Input carries one signal and its context into grading. FundingRate
// is the venue's current rate for the symbol, nil when unknown.
// MTFAgreement is set when the confirmation timeframe points the same
// way; it counts as one extra agreeing indicator.
type Input struct {
	Signal       *strategy.RawSignal
	Bundle       *indicators.Bundle
	Preset       config.TimeframePreset
	FundingRate  *float64
	MTFAgreement bool
}

// GradedSignal is the strategy signal plus the grading verdict.
type GradedSignal struct {
	strategy.RawSignal

	Grade          Grade   `json:"grade"`
	QualityScore   int     `json:"quality_score"`
	WinProbability float64 `json:"win_probability"`
	Tradeable      bool    `json:"tradeable"`
	RejectReason   string  `json:"reject_reason,omitempty"`
}

type Grader struct {
	logger zerolog.Logger
}

func NewGrader() *Grader {
	return &Grader{
		logger: log.With().Str("component", "grader").Logger(),
	}
}

// Grade runs the grading pipeline: win probability and quality first,
// then the ordered filter chain. A signal that fails any filter keeps
// its computed quality and probability but grades F.
func (g *Grader) Grade(in Input) *GradedSignal {
	if in.Signal == nil {
		return &GradedSignal{Grade: GradeF, RejectReason: "no signal"}
	}
	out := &GradedSignal{RawSignal: *in.Signal}

	confluence := in.Signal.Confluence
	if in.MTFAgreement {
		confluence++
	}
	fund := fundingBonusFor(in.Signal.Direction, in.FundingRate)
	quality, grade, winProb := computeGrading(in.Signal.AbsScore, confluence, fund)
	out.QualityScore = quality
	out.Grade = grade
	out.WinProbability = winProb

	out.Tradeable, out.RejectReason = g.runFilters(in.Signal, in.Bundle, in.Preset, confluence, winProb)
	if !out.Tradeable {
		out.Grade = GradeF
	}

	g.logger.Debug().
		Str("timeframe", in.Signal.Timeframe.String()).
		Str("direction", in.Signal.Direction.String()).
		Str("grade", string(out.Grade)).
		Int("quality", quality).
		Float64("win_probability", winProb).
		Bool("tradeable", out.Tradeable).
		Str("reject_reason", out.RejectReason).
		Msg("Signal graded")
	return out
}

// computeGrading resolves the probability formula. The quality bonus
// depends on the grade, which depends on quality, which bands the
// preliminary probability, so the terms are staged: everything except
// the quality bonus first, then quality and grade over that, then the
// capped total.
func computeGrading(absScore, confluence int, fund float64) (int, Grade, float64) {
	p := scoreBase(absScore) + confluenceBonus(confluence) + strengthBonus(absScore) + fund*fundingWeight
	quality := qualityScore(absScore, confluence, p)
	grade := gradeFor(quality)
	p += qualityBonus(grade, quality)
	if p > winProbabilityCap {
		p = winProbabilityCap
	}
	return quality, grade, p
}

// runFilters applies the admission filters in order and reports the
// first failure. Missing indicator reads never block: a nil RSI, a
// zero ADX, or an absent volume read skips its filter.
func (g *Grader) runFilters(sig *strategy.RawSignal, b *indicators.Bundle, preset config.TimeframePreset, confluence int, winProb float64) (bool, string) {
	if !sig.HasDirection() {
		return false, "no direction"
	}
	if sig.AbsScore < preset.MinScore {
		return false, fmt.Sprintf("score %d below minimum %d", sig.AbsScore, preset.MinScore)
	}

	need := preset.MinConfluence
	if sig.AbsScore >= 7 && need > 0 {
		need--
	}
	if confluence < need {
		return false, fmt.Sprintf("confluence %d below minimum %d", confluence, need)
	}

	if b != nil && b.RSI != nil {
		v := b.RSI.Value
		if sig.Direction == market.DirectionLong && v > preset.RSILongMax {
			return false, fmt.Sprintf("rsi %.1f above long maximum %.0f", v, preset.RSILongMax)
		}
		if sig.Direction == market.DirectionShort && (v < preset.RSIShortMin || v > rsiShortMax) {
			return false, fmt.Sprintf("rsi %.1f outside short band %.0f..%.0f", v, preset.RSIShortMin, rsiShortMax)
		}
	}

	if adx := b.ADXValue(); adx > 0 && adx < preset.ADXMin {
		return false, fmt.Sprintf("adx %.1f below minimum %.0f", adx, preset.ADXMin)
	}

	if winProb < preset.MinWinProbability {
		return false, fmt.Sprintf("win probability %.2f below minimum %.2f", winProb, preset.MinWinProbability)
	}

	if b != nil && b.CVD != nil && b.CVD.Divergence && flowOpposes(sig.Direction, b.CVD.Trend) {
		return false, "flow diverges from price"
	}
	if b != nil && b.Volume != nil && b.Volume.Ratio < minLiquidityRatio {
		return false, fmt.Sprintf("volume %.2f of average below liquidity floor", b.Volume.Ratio)
	}

	if b.VolatilityClass() == indicators.VolatilityLow && sig.AbsScore < 5 {
		return false, fmt.Sprintf("low volatility for score %d", sig.AbsScore)
	}
	return true, ""
}

func flowOpposes(dir market.Direction, trend string) bool {
	if dir == market.DirectionLong {
		return trend == indicators.CrossoverBearish
	}
	return trend == indicators.CrossoverBullish
}

// scoreBase maps absolute score onto the base probability, 0.50..0.78.
func scoreBase(absScore int) float64 {
	switch {
	case absScore >= 7:
		return 0.78
	case absScore == 6:
		return 0.73
	case absScore == 5:
		return 0.68
	case absScore == 4:
		return 0.62
	case absScore == 3:
		return 0.56
	default:
		return 0.50
	}
}

// confluenceBonus rewards indicator agreement, +0.04..+0.12.
func confluenceBonus(confluence int) float64 {
	switch {
	case confluence >= 4:
		return 0.12
	case confluence == 3:
		return 0.10
	case confluence == 2:
		return 0.08
	case confluence == 1:
		return 0.06
	default:
		return 0.04
	}
}

// strengthBonus adds up to +0.06 for scores in the top band.
func strengthBonus(absScore int) float64 {
	switch {
	case absScore >= 7:
		return 0.06
	case absScore == 6:
		return 0.04
	case absScore == 5:
		return 0.02
	default:
		return 0
	}
}

// qualityBonus adds 0..+0.15 by grade, with the top step reserved for
// high-quality A signals.
func qualityBonus(grade Grade, quality int) float64 {
	switch grade {
	case GradeA:
		if quality >= 80 {
			return 0.15
		}
		return 0.12
	case GradeB:
		return 0.08
	case GradeC:
		return 0.04
	default:
		return 0
	}
}

// fundingBonusFor converts the funding rate into the bonus multiplier:
// +2 strong favourable carry, +1 mild, -1 strong adverse, 0 otherwise.
// Positive funding pays shorts, so a positive rate favours shorts and
// penalises longs.
func fundingBonusFor(dir market.Direction, rate *float64) float64 {
	if rate == nil || !dir.IsValid() {
		return 0
	}
	favour := -*rate
	if dir == market.DirectionShort {
		favour = *rate
	}
	switch {
	case favour >= fundingStrong:
		return 2
	case favour >= fundingMild:
		return 1
	case favour <= -fundingStrong:
		return -1
	default:
		return 0
	}
}

// qualityScore bands score, confluence, and preliminary probability
// into 0..100. The three bands weigh 40/30/30.
func qualityScore(absScore, confluence int, winProb float64) int {
	q := 0
	switch {
	case absScore >= 7:
		q += 40
	case absScore == 6:
		q += 33
	case absScore == 5:
		q += 27
	case absScore == 4:
		q += 20
	case absScore == 3:
		q += 14
	default:
		q += 5
	}
	switch {
	case confluence >= 4:
		q += 30
	case confluence == 3:
		q += 24
	case confluence == 2:
		q += 17
	case confluence == 1:
		q += 10
	}
	switch {
	case winProb >= 0.80:
		q += 30
	case winProb >= 0.72:
		q += 24
	case winProb >= 0.65:
		q += 17
	case winProb >= 0.58:
		q += 10
	default:
		q += 5
	}
	return q
}

func gradeFor(quality int) Grade {
	switch {
	case quality >= 60:
		return GradeA
	case quality >= 40:
		return GradeB
	case quality >= 20:
		return GradeC
	default:
		return GradeD
	}
}
