package strategy

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/kumotrade/internal/config"
	"github.com/ajitpratap0/kumotrade/internal/indicators"
	"github.com/ajitpratap0/kumotrade/internal/market"
)

// SMCStrategy trades structural evidence: breaks of structure, order
// blocks, imbalances, and liquidity sweeps, weighted onto the shared
// -7..+7 scale.
type SMCStrategy struct {
	logger zerolog.Logger
}

func NewSMCStrategy() *SMCStrategy {
	return &SMCStrategy{
		logger: log.With().Str("component", "strategy").Str("strategy", NameSMC).Logger(),
	}
}

func (s *SMCStrategy) Name() string { return NameSMC }

// Analyze weighs the structural evidence at the head bar. A signal
// additionally needs RSI inside the working band, and an active session
// when the session filter is enabled.
func (s *SMCStrategy) Analyze(candles []market.Candle, tf market.Timeframe, bundle *indicators.Bundle, cfg *config.EngineConfig) (*RawSignal, error) {
	preset, err := config.PresetFor(tf)
	if err != nil {
		return nil, fmt.Errorf("smc analyze: %w", err)
	}

	signal := &RawSignal{Strategy: NameSMC, Timeframe: tf}
	features := DetectSMCFeatures(candles)
	if features == nil {
		signal.Reasons = append(signal.Reasons,
			fmt.Sprintf("window of %d bars below structure minimum %d", len(candles), smcMinBars))
		return signal, nil
	}

	price := market.LastClose(candles)
	score, reasons := smcScore(price, features)
	signal.Score = score
	signal.AbsScore = absInt(score)
	signal.Reasons = append(signal.Reasons, reasons...)
	signal.Direction = directionFor(score, preset.MinScore)

	if signal.HasDirection() && bundle != nil && bundle.RSI != nil {
		lo, hi := 25.0, 75.0
		if cfg != nil && cfg.RSIOversold > 0 {
			lo = cfg.RSIOversold
		}
		if cfg != nil && cfg.RSIOverbought > 0 {
			hi = cfg.RSIOverbought
		}
		if bundle.RSI.Value <= lo || bundle.RSI.Value >= hi {
			signal.Reasons = append(signal.Reasons,
				fmt.Sprintf("rsi %.1f outside %.0f..%.0f band", bundle.RSI.Value, lo, hi))
			signal.Direction = ""
		}
	}
	if signal.HasDirection() && sessionFilterOn(cfg) && features.Session == SessionAsia {
		signal.Reasons = append(signal.Reasons, "asia session filtered")
		signal.Direction = ""
	}
	if !signal.HasDirection() {
		return signal, nil
	}

	votes, agreed := confluenceVotes(signal.Direction, bundle)
	signal.Confluence = votes
	for _, name := range agreed {
		signal.Reasons = append(signal.Reasons, name+" agrees")
	}
	s.attachLevels(signal, price, features, bundle)

	s.logger.Debug().
		Str("timeframe", tf.String()).
		Str("direction", signal.Direction.String()).
		Int("score", score).
		Str("zone", features.Zone).
		Str("session", features.Session).
		Msg("SMC signal")
	return signal, nil
}

// smcScore sums the structural evidence at the head: break of structure
// 2, price inside a live order block 2, inside an open imbalance 1,
// fresh sweep 1, range position 1. Opposing evidence subtracts.
func smcScore(price float64, f *SMCFeatures) (int, []string) {
	score := 0
	var reasons []string

	if f.Break != nil {
		if f.Break.Direction == market.DirectionLong {
			score += 2
			reasons = append(reasons, "bullish break of structure")
		} else {
			score -= 2
			reasons = append(reasons, "bearish break of structure")
		}
	}
	if ob := activeBlockAt(price, f.OrderBlocks); ob != nil {
		if ob.Direction == market.DirectionLong {
			score += 2
			reasons = append(reasons, "price in bullish order block")
		} else {
			score -= 2
			reasons = append(reasons, "price in bearish order block")
		}
	}
	if g := openGapAt(price, f.Gaps); g != nil {
		if g.Direction == market.DirectionLong {
			score++
			reasons = append(reasons, "price in bullish imbalance")
		} else {
			score--
			reasons = append(reasons, "price in bearish imbalance")
		}
	}
	if sw := latestSweep(f.Sweeps); sw != nil {
		if sw.Direction == market.DirectionLong {
			score++
			reasons = append(reasons, "liquidity sweep below")
		} else {
			score--
			reasons = append(reasons, "liquidity sweep above")
		}
	}
	switch f.Zone {
	case ZoneDiscount:
		score++
		reasons = append(reasons, "discount zone")
	case ZonePremium:
		score--
		reasons = append(reasons, "premium zone")
	}
	return score, reasons
}

func sessionFilterOn(cfg *config.EngineConfig) bool {
	set := enabledSet(cfg)
	return set != nil && set[SignalSessions]
}

// attachLevels anchors the stop behind the structure in play and the
// target toward the opposite side of the working range.
func (s *SMCStrategy) attachLevels(sig *RawSignal, entry float64, f *SMCFeatures, b *indicators.Bundle) {
	var slCands, tpCands []levelCandidate

	if sig.Direction == market.DirectionLong {
		if ob := activeBlockAt(entry, f.OrderBlocks); ob != nil && ob.Direction == market.DirectionLong {
			slCands = append(slCands, levelCandidate{ob.Low, LevelSourceStructure})
		}
		if sw := latestSweep(f.Sweeps); sw != nil && sw.Direction == market.DirectionLong {
			slCands = append(slCands, levelCandidate{sw.Level, LevelSourceStructure})
		}
		slCands = append(slCands, levelCandidate{f.RangeLow, LevelSourceStructure})
		tpCands = append(tpCands, levelCandidate{f.RangeHigh, LevelSourceStructure})
	} else {
		if ob := activeBlockAt(entry, f.OrderBlocks); ob != nil && ob.Direction == market.DirectionShort {
			slCands = append(slCands, levelCandidate{ob.High, LevelSourceStructure})
		}
		if sw := latestSweep(f.Sweeps); sw != nil && sw.Direction == market.DirectionShort {
			slCands = append(slCands, levelCandidate{sw.Level, LevelSourceStructure})
		}
		slCands = append(slCands, levelCandidate{f.RangeHigh, LevelSourceStructure})
		tpCands = append(tpCands, levelCandidate{f.RangeLow, LevelSourceStructure})
	}
	if b != nil && b.EMA200 != nil {
		slCands = append(slCands, levelCandidate{b.EMA200.Value, LevelSourceEMA200})
		tpCands = append(tpCands, levelCandidate{b.EMA200.Value, LevelSourceEMA200})
	}
	if b != nil && b.Bollinger != nil {
		if sig.Direction == market.DirectionLong {
			slCands = append(slCands, levelCandidate{b.Bollinger.Lower, LevelSourceBollinger})
			tpCands = append(tpCands, levelCandidate{b.Bollinger.Upper, LevelSourceBollinger})
		} else {
			slCands = append(slCands, levelCandidate{b.Bollinger.Upper, LevelSourceBollinger})
			tpCands = append(tpCands, levelCandidate{b.Bollinger.Lower, LevelSourceBollinger})
		}
	}

	sig.SuggestedSL, sig.SLSource = pickStop(entry, sig.Direction, slCands)
	sig.SuggestedTP, sig.TPSource = pickTarget(entry, sig.Direction, sig.SuggestedSL, tpCands)
}
