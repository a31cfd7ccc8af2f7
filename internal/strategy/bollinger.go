package strategy

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/kumotrade/internal/config"
	"github.com/ajitpratap0/kumotrade/internal/indicators"
	"github.com/ajitpratap0/kumotrade/internal/market"
)

// bollingerSpan matches the bundle default so the squeeze read here
// lines up with the published indicator.
const bollingerSpan = 20

// SqueezeStrategy trades volatility compression: a squeeze is Bollinger
// inside Keltner, the release arms the signal, and a close outside the
// band with matching momentum confirms it.
type SqueezeStrategy struct {
	logger zerolog.Logger
}

func NewSqueezeStrategy() *SqueezeStrategy {
	return &SqueezeStrategy{
		logger: log.With().Str("component", "strategy").Str("strategy", NameBollinger).Logger(),
	}
}

func (s *SqueezeStrategy) Name() string { return NameBollinger }

// Analyze maps the squeeze cycle onto the shared score scale: release
// with momentum 4, band breakout 5, release plus breakout 6, and one
// more point on a volume spike.
func (s *SqueezeStrategy) Analyze(candles []market.Candle, tf market.Timeframe, bundle *indicators.Bundle, cfg *config.EngineConfig) (*RawSignal, error) {
	preset, err := config.PresetFor(tf)
	if err != nil {
		return nil, fmt.Errorf("squeeze analyze: %w", err)
	}

	signal := &RawSignal{Strategy: NameBollinger, Timeframe: tf}
	var bb *indicators.BollingerResult
	if bundle != nil {
		bb = bundle.Bollinger
	}
	if bb == nil {
		bb = indicators.ComputeBollinger(candles, bollingerSpan)
	}
	if bb == nil {
		signal.Reasons = append(signal.Reasons, "bollinger bands unavailable on window")
		return signal, nil
	}
	var prev *indicators.BollingerResult
	if len(candles) > 1 {
		prev = indicators.ComputeBollinger(candles[:len(candles)-1], bollingerSpan)
	}

	price := market.LastClose(candles)
	release := prev != nil && prev.Squeeze && !bb.Squeeze
	momentumBull, momentumBear := false, false
	if bundle != nil && bundle.Momentum != nil {
		momentumBull = bundle.Momentum.Value > 0
		momentumBear = bundle.Momentum.Value < 0
	}
	breakoutLong := price > bb.Upper && momentumBull
	breakoutShort := price < bb.Lower && momentumBear

	score := 0
	switch {
	case release && breakoutLong:
		score = 6
		signal.Reasons = append(signal.Reasons, "squeeze release with breakout above")
	case breakoutLong:
		score = 5
		signal.Reasons = append(signal.Reasons, "close above upper band with momentum")
	case release && momentumBull:
		score = 4
		signal.Reasons = append(signal.Reasons, "squeeze release, bullish momentum")
	case release && breakoutShort:
		score = -6
		signal.Reasons = append(signal.Reasons, "squeeze release with breakout below")
	case breakoutShort:
		score = -5
		signal.Reasons = append(signal.Reasons, "close below lower band with momentum")
	case release && momentumBear:
		score = -4
		signal.Reasons = append(signal.Reasons, "squeeze release, bearish momentum")
	default:
		if bb.Squeeze {
			signal.Reasons = append(signal.Reasons, "squeeze building")
		}
	}
	if bundle != nil && bundle.Volume != nil && bundle.Volume.Spike {
		if score > 0 {
			score++
		} else if score < 0 {
			score--
		}
	}

	signal.Score = score
	signal.AbsScore = absInt(score)
	signal.Direction = directionFor(score, preset.MinScore)
	if !signal.HasDirection() {
		return signal, nil
	}

	votes, agreed := confluenceVotes(signal.Direction, bundle)
	signal.Confluence = votes
	for _, name := range agreed {
		signal.Reasons = append(signal.Reasons, name+" agrees")
	}
	s.attachLevels(signal, price, bb)

	s.logger.Debug().
		Str("timeframe", tf.String()).
		Str("direction", signal.Direction.String()).
		Int("score", score).
		Bool("release", release).
		Msg("Squeeze signal")
	return signal, nil
}

// attachLevels stops at the band midline and targets the measured move,
// one band width beyond the close.
func (s *SqueezeStrategy) attachLevels(sig *RawSignal, entry float64, bb *indicators.BollingerResult) {
	width := bb.Upper - bb.Lower
	var slCands, tpCands []levelCandidate

	if sig.Direction == market.DirectionLong {
		slCands = []levelCandidate{
			{bb.Middle, LevelSourceBollinger},
			{bb.Lower, LevelSourceBollinger},
		}
		tpCands = []levelCandidate{
			{entry + width, LevelSourceMeasuredMove},
			{bb.Upper, LevelSourceBollinger},
		}
	} else {
		slCands = []levelCandidate{
			{bb.Middle, LevelSourceBollinger},
			{bb.Upper, LevelSourceBollinger},
		}
		tpCands = []levelCandidate{
			{entry - width, LevelSourceMeasuredMove},
			{bb.Lower, LevelSourceBollinger},
		}
	}

	sig.SuggestedSL, sig.SLSource = pickStop(entry, sig.Direction, slCands)
	sig.SuggestedTP, sig.TPSource = pickTarget(entry, sig.Direction, sig.SuggestedSL, tpCands)
}
