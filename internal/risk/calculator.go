// Package risk turns an admitted signal into concrete trade
// parameters: stop loss, take profit, reward ratio and position size.
// It also hosts the correlation gate that caps portfolio exposure per
// asset cluster.
package risk

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/kumotrade/internal/market"
)

// SL/TP placement modes, matching EngineConfig.TPSLMode.
const (
	ModeAuto     = "auto"
	ModeATR      = "atr"
	ModePercent  = "percent"
	ModeIchimoku = "ichimoku"
)

// Level sources reported in SLTPResult.
const (
	SourceTechnical = "technical"
	SourceLevel     = "level"
	SourceATR       = "atr"
	SourcePercent   = "percent"
)

// Candidate levels closer than this fraction of entry are treated as
// noise; farther than the max they stop being actionable.
const (
	minLevelDistancePct = 0.3
	maxLevelDistancePct = 8.0
)

// One basis point of entry stands in for the exchange tick when
// judging whether a stop distance is usable for sizing.
const minStopDistanceFrac = 0.0001

// SLTPContext carries the inputs for one stop/target calculation.
// Pointer fields are optional; nil means the strategy or indicator
// layer had nothing to offer.
type SLTPContext struct {
	Mode string

	TechnicalSL *float64
	TechnicalTP *float64

	SupportLevel    *float64
	ResistanceLevel *float64

	ATRValue  float64
	ATRMultSL float64
	ATRMultTP float64

	// Percent legs: custom overrides win over the preset defaults.
	DefaultSLPct float64
	DefaultTPPct float64
	CustomSLPct  float64
	CustomTPPct  float64

	MinRRR float64
}

// SLTPResult is the calculator's verdict for one candidate trade.
type SLTPResult struct {
	StopLoss      float64
	TakeProfit    float64
	RiskPercent   float64
	RewardPercent float64
	RRR           float64
	MeetsMinRRR   bool
	SLSource      string
	TPSource      string
}

// Calculator computes stops, targets and sizes. Stateless; safe for
// concurrent use.
type Calculator struct {
	logger zerolog.Logger
}

// NewCalculator returns a ready calculator.
func NewCalculator() *Calculator {
	return &Calculator{
		logger: log.With().Str("component", "risk").Logger(),
	}
}

// CalculateSLTP derives the stop and target for an entry at the given
// price. Mode semantics: auto prefers strategy levels and falls back
// through support/resistance to percent defaults; atr derives both
// legs from volatility; percent uses fixed distances; ichimoku
// requires the strategy-provided levels and fails without them.
func (c *Calculator) CalculateSLTP(entry float64, direction market.Direction, ctx SLTPContext) (*SLTPResult, error) {
	if entry <= 0 {
		return nil, fmt.Errorf("entry price must be positive, got %f", entry)
	}
	if !direction.IsValid() {
		return nil, fmt.Errorf("unknown direction: %q", direction)
	}

	slPct := ctx.CustomSLPct
	if slPct <= 0 {
		slPct = ctx.DefaultSLPct
	}
	if slPct <= 0 {
		slPct = 1.0
	}
	tpPct := ctx.CustomTPPct
	if tpPct <= 0 {
		tpPct = ctx.DefaultTPPct
	}
	if tpPct <= 0 {
		tpPct = 2.0
	}

	var sl, tp float64
	var slSource, tpSource string

	switch ctx.Mode {
	case ModePercent:
		sl, tp = percentLevels(entry, direction, slPct, tpPct)
		slSource, tpSource = SourcePercent, SourcePercent

	case ModeATR:
		if ctx.ATRValue <= 0 {
			c.logger.Warn().
				Str("direction", direction.String()).
				Msg("ATR mode without ATR value, falling back to percent distances")
			sl, tp = percentLevels(entry, direction, slPct, tpPct)
			slSource, tpSource = SourcePercent, SourcePercent
			break
		}
		multSL := ctx.ATRMultSL
		if multSL <= 0 {
			multSL = 1.5
		}
		multTP := ctx.ATRMultTP
		if multTP <= 0 {
			multTP = 3.0
		}
		if direction == market.DirectionLong {
			sl = entry - multSL*ctx.ATRValue
			tp = entry + multTP*ctx.ATRValue
		} else {
			sl = entry + multSL*ctx.ATRValue
			tp = entry - multTP*ctx.ATRValue
		}
		if sl <= 0 || tp <= 0 {
			return nil, fmt.Errorf("atr distances produce non-positive level (entry %f, atr %f)", entry, ctx.ATRValue)
		}
		slSource, tpSource = SourceATR, SourceATR

	case ModeIchimoku:
		if !usableStop(entry, direction, ctx.TechnicalSL) || !usableTarget(entry, direction, ctx.TechnicalTP) {
			return nil, fmt.Errorf("ichimoku mode requires strategy SL and TP levels on the correct side of entry")
		}
		sl, tp = *ctx.TechnicalSL, *ctx.TechnicalTP
		slSource, tpSource = SourceTechnical, SourceTechnical

	case ModeAuto, "":
		sl, slSource = c.pickStop(entry, direction, ctx, slPct)
		tp, tpSource = c.pickTarget(entry, direction, ctx, tpPct)

	default:
		return nil, fmt.Errorf("unknown tpsl mode: %q", ctx.Mode)
	}

	return buildResult(entry, direction, sl, tp, slSource, tpSource, ctx.MinRRR)
}

// pickStop walks the stop candidates in preference order: strategy
// level, then support/resistance, then percent distance.
func (c *Calculator) pickStop(entry float64, direction market.Direction, ctx SLTPContext, slPct float64) (float64, string) {
	if usableStop(entry, direction, ctx.TechnicalSL) {
		return *ctx.TechnicalSL, SourceTechnical
	}

	level := ctx.SupportLevel
	if direction == market.DirectionShort {
		level = ctx.ResistanceLevel
	}
	if usableStop(entry, direction, level) {
		return *level, SourceLevel
	}

	sl, _ := percentLevels(entry, direction, slPct, 0)
	return sl, SourcePercent
}

func (c *Calculator) pickTarget(entry float64, direction market.Direction, ctx SLTPContext, tpPct float64) (float64, string) {
	if usableTarget(entry, direction, ctx.TechnicalTP) {
		return *ctx.TechnicalTP, SourceTechnical
	}

	level := ctx.ResistanceLevel
	if direction == market.DirectionShort {
		level = ctx.SupportLevel
	}
	if usableTarget(entry, direction, level) {
		return *level, SourceLevel
	}

	_, tp := percentLevels(entry, direction, 0, tpPct)
	return tp, SourcePercent
}

// usableStop reports whether level sits on the protective side of
// entry at an actionable distance.
func usableStop(entry float64, direction market.Direction, level *float64) bool {
	if level == nil || *level <= 0 {
		return false
	}
	if direction == market.DirectionLong && *level >= entry {
		return false
	}
	if direction == market.DirectionShort && *level <= entry {
		return false
	}
	return distanceOK(entry, *level)
}

func usableTarget(entry float64, direction market.Direction, level *float64) bool {
	if level == nil || *level <= 0 {
		return false
	}
	if direction == market.DirectionLong && *level <= entry {
		return false
	}
	if direction == market.DirectionShort && *level >= entry {
		return false
	}
	return distanceOK(entry, *level)
}

func distanceOK(entry, level float64) bool {
	pct := math.Abs(entry-level) / entry * 100
	return pct >= minLevelDistancePct && pct <= maxLevelDistancePct
}

func percentLevels(entry float64, direction market.Direction, slPct, tpPct float64) (sl, tp float64) {
	if direction == market.DirectionLong {
		return entry * (1 - slPct/100), entry * (1 + tpPct/100)
	}
	return entry * (1 + slPct/100), entry * (1 - tpPct/100)
}

func buildResult(entry float64, direction market.Direction, sl, tp float64, slSource, tpSource string, minRRR float64) (*SLTPResult, error) {
	if direction == market.DirectionLong && !(sl < entry && entry < tp) {
		return nil, fmt.Errorf("long levels out of order: sl %f, entry %f, tp %f", sl, entry, tp)
	}
	if direction == market.DirectionShort && !(tp < entry && entry < sl) {
		return nil, fmt.Errorf("short levels out of order: tp %f, entry %f, sl %f", tp, entry, sl)
	}

	riskPct := math.Abs(entry-sl) / entry * 100
	rewardPct := math.Abs(tp-entry) / entry * 100
	rrr := rewardPct / riskPct

	return &SLTPResult{
		StopLoss:      sl,
		TakeProfit:    tp,
		RiskPercent:   riskPct,
		RewardPercent: rewardPct,
		RRR:           rrr,
		MeetsMinRRR:   minRRR <= 0 || rrr >= minRRR,
		SLSource:      slSource,
		TPSource:      tpSource,
	}, nil
}

// CalculatePositionSize risks riskPerTradePct of equity over the stop
// distance, bounded by the leverage-implied maximum. Returns 0 when
// the stop distance is below the tick proxy or equity cannot carry
// the trade.
func (c *Calculator) CalculatePositionSize(equity, entry, stopLoss float64, leverage int, riskPerTradePct float64) float64 {
	if equity <= 0 || entry <= 0 || stopLoss <= 0 {
		return 0
	}

	distance := math.Abs(entry - stopLoss)
	if distance < entry*minStopDistanceFrac {
		c.logger.Warn().
			Float64("entry", entry).
			Float64("stop_loss", stopLoss).
			Msg("Stop distance below tick threshold, sizing to zero")
		return 0
	}

	if riskPerTradePct <= 0 {
		riskPerTradePct = 1.0
	}
	if leverage < 1 {
		leverage = 1
	}

	riskAmount := equity * riskPerTradePct / 100
	size := riskAmount / distance

	maxSize := equity * float64(leverage) / entry
	if size > maxSize {
		size = maxSize
	}
	if size <= 0 || math.IsNaN(size) || math.IsInf(size, 0) {
		return 0
	}
	return size
}

// ValidateTrade is the final consistency check before an order is
// sent: direction known, size positive, levels on the right sides,
// ratio positive.
func (c *Calculator) ValidateTrade(direction market.Direction, entry, size float64, res *SLTPResult) error {
	if !direction.IsValid() {
		return fmt.Errorf("unknown direction: %q", direction)
	}
	if res == nil {
		return fmt.Errorf("missing SL/TP result")
	}
	if size <= 0 {
		return fmt.Errorf("position size must be positive, got %f", size)
	}
	if direction == market.DirectionLong && !(res.StopLoss < entry && entry < res.TakeProfit) {
		return fmt.Errorf("long trade levels inconsistent: sl %f, entry %f, tp %f", res.StopLoss, entry, res.TakeProfit)
	}
	if direction == market.DirectionShort && !(res.TakeProfit < entry && entry < res.StopLoss) {
		return fmt.Errorf("short trade levels inconsistent: tp %f, entry %f, sl %f", res.TakeProfit, entry, res.StopLoss)
	}
	if res.RRR <= 0 {
		return fmt.Errorf("reward/risk ratio must be positive, got %f", res.RRR)
	}
	return nil
}
