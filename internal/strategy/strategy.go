// Package strategy turns candle windows and indicator bundles into
// RawSignals. Three variants share one output shape so the grader and
// the trade gate never care which one produced a signal.
package strategy

import (
	"fmt"
	"math"

	"github.com/ajitpratap0/kumotrade/internal/config"
	"github.com/ajitpratap0/kumotrade/internal/indicators"
	"github.com/ajitpratap0/kumotrade/internal/market"
)

// Strategy names accepted by New.
const (
	NameIchimoku  = "ichimoku"
	NameSMC       = "smc"
	NameBollinger = "bollinger"
)

// Primitive signal names.
const (
	SignalTKCross      = "tk_cross"
	SignalKumoBreakout = "kumo_breakout"
	SignalKumoTwist    = "kumo_twist"
	SignalKijunBounce  = "kijun_bounce"
	SignalSessions     = "sessions"
)

// Level source labels carried on RawSignal.
const (
	LevelSourceIchimoku     = "ichimoku"
	LevelSourceEMA200       = "ema200"
	LevelSourceBollinger    = "bollinger"
	LevelSourceStructure    = "structure"
	LevelSourceMeasuredMove = "measured_move"
)

// minPrimitiveStrength drops pattern detections too weak to act on.
const minPrimitiveStrength = 0.3

// Suggested levels must sit between these distances from entry, as a
// percent of the entry price. Closer is noise, farther is untradeable.
const (
	minLevelDistancePct = 0.3
	maxLevelDistancePct = 8.0
)

// PrimitiveSignal is one detected pattern with its direction and a
// strength in (0, 1].
type PrimitiveSignal struct {
	Name      string           `json:"name"`
	Direction market.Direction `json:"direction"`
	Strength  float64          `json:"strength"`
}

// RawSignal is the uniform strategy output. Direction is empty when the
// window yields no trade. SuggestedSL/TP are nil when no level inside
// the distance bounds survives; the risk calculator then falls back to
// its own modes.
type RawSignal struct {
	Strategy  string           `json:"strategy"`
	Timeframe market.Timeframe `json:"timeframe"`

	Direction  market.Direction `json:"direction,omitempty"`
	Score      int              `json:"score"`
	AbsScore   int              `json:"abs_score"`
	Confluence int              `json:"confluence"`

	SuggestedSL *float64 `json:"suggested_sl,omitempty"`
	SuggestedTP *float64 `json:"suggested_tp,omitempty"`
	SLSource    string   `json:"sl_source,omitempty"`
	TPSource    string   `json:"tp_source,omitempty"`

	Primitives []PrimitiveSignal `json:"primitives,omitempty"`
	Reasons    []string          `json:"reasons,omitempty"`
}

// HasDirection reports whether the signal proposes a trade.
func (s *RawSignal) HasDirection() bool {
	return s != nil && s.Direction.IsValid()
}

// Strategy evaluates one (symbol, timeframe) window. Implementations
// are stateless and safe for concurrent use across symbols.
type Strategy interface {
	Name() string
	Analyze(candles []market.Candle, tf market.Timeframe, bundle *indicators.Bundle, cfg *config.EngineConfig) (*RawSignal, error)
}

// New returns the strategy registered under name.
func New(name string) (Strategy, error) {
	switch name {
	case NameIchimoku:
		return NewIchimokuStrategy(), nil
	case NameSMC:
		return NewSMCStrategy(), nil
	case NameBollinger:
		return NewSqueezeStrategy(), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

// directionFor applies the preset threshold to a variant score.
func directionFor(score int, minScore int) market.Direction {
	switch {
	case score >= minScore:
		return market.DirectionLong
	case score <= -minScore:
		return market.DirectionShort
	default:
		return ""
	}
}

// confluenceVotes counts how many of the five secondary reads agree
// with the direction: RSI bias, MACD histogram, ADX trend, price vs
// VWAP, and CVD trend. Nil bundle fields never vote.
func confluenceVotes(dir market.Direction, b *indicators.Bundle) (int, []string) {
	if b == nil || !dir.IsValid() {
		return 0, nil
	}
	long := dir == market.DirectionLong
	votes := 0
	var agreed []string

	if b.RSI != nil {
		if long && b.RSI.Value > 50 && b.RSI.Signal != indicators.SignalOverbought {
			votes++
			agreed = append(agreed, "rsi")
		}
		if !long && b.RSI.Value < 50 && b.RSI.Signal != indicators.SignalOversold {
			votes++
			agreed = append(agreed, "rsi")
		}
	}
	if b.MACD != nil {
		if (long && b.MACD.Histogram > 0) || (!long && b.MACD.Histogram < 0) {
			votes++
			agreed = append(agreed, "macd")
		}
	}
	if b.ADX != nil && b.ADX.TrendStrength != indicators.TrendWeak {
		if (long && b.ADX.Direction == indicators.CrossoverBullish) ||
			(!long && b.ADX.Direction == indicators.CrossoverBearish) {
			votes++
			agreed = append(agreed, "adx")
		}
	}
	if b.VWAP != nil {
		if (long && b.VWAP.Position == indicators.PositionAbove) ||
			(!long && b.VWAP.Position == indicators.PositionBelow) {
			votes++
			agreed = append(agreed, "vwap")
		}
	}
	if b.CVD != nil {
		if (long && b.CVD.Trend == indicators.CrossoverBullish) ||
			(!long && b.CVD.Trend == indicators.CrossoverBearish) {
			votes++
			agreed = append(agreed, "cvd")
		}
	}
	return votes, agreed
}

// levelCandidate is a price level proposed as a stop or a target,
// tagged with its source for the signal payload.
type levelCandidate struct {
	price  float64
	source string
}

// usableLevel bounds the level distance to the tradeable window.
func usableLevel(entry, level float64) bool {
	if entry <= 0 || level <= 0 {
		return false
	}
	dist := math.Abs(entry-level) / entry * 100
	return dist >= minLevelDistancePct && dist <= maxLevelDistancePct
}

// pickStop returns the first candidate on the loss side of entry whose
// distance falls inside the level bounds.
func pickStop(entry float64, dir market.Direction, candidates []levelCandidate) (*float64, string) {
	for _, c := range candidates {
		if !usableLevel(entry, c.price) {
			continue
		}
		if dir == market.DirectionLong && c.price >= entry {
			continue
		}
		if dir == market.DirectionShort && c.price <= entry {
			continue
		}
		p := c.price
		return &p, c.source
	}
	return nil, ""
}

// pickTarget returns the first profit-side candidate inside the bounds
// that clears a 1.0 reward-to-risk ratio against the chosen stop.
// Candidates failing the ratio are skipped, never truncated.
func pickTarget(entry float64, dir market.Direction, stop *float64, candidates []levelCandidate) (*float64, string) {
	for _, c := range candidates {
		if !usableLevel(entry, c.price) {
			continue
		}
		if dir == market.DirectionLong && c.price <= entry {
			continue
		}
		if dir == market.DirectionShort && c.price >= entry {
			continue
		}
		if stop != nil {
			risk := math.Abs(entry - *stop)
			if risk <= 0 || math.Abs(c.price-entry)/risk < 1.0 {
				continue
			}
		}
		p := c.price
		return &p, c.source
	}
	return nil, ""
}

// enabledSet turns the config signal list into a lookup. A nil config
// or empty list enables everything.
func enabledSet(cfg *config.EngineConfig) map[string]bool {
	if cfg == nil || len(cfg.EnabledSignals) == 0 {
		return nil
	}
	set := make(map[string]bool, len(cfg.EnabledSignals))
	for _, name := range cfg.EnabledSignals {
		set[name] = true
	}
	return set
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
