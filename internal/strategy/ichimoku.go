package strategy

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/kumotrade/internal/config"
	"github.com/ajitpratap0/kumotrade/internal/indicators"
	"github.com/ajitpratap0/kumotrade/internal/market"
)

// IchimokuStrategy scores the five-line system into -7..+7 and derives
// stops and targets from the cloud structure.
type IchimokuStrategy struct {
	logger zerolog.Logger
}

func NewIchimokuStrategy() *IchimokuStrategy {
	return &IchimokuStrategy{
		logger: log.With().Str("component", "strategy").Str("strategy", NameIchimoku).Logger(),
	}
}

func (s *IchimokuStrategy) Name() string { return NameIchimoku }

// Analyze evaluates the window head. The score is the sum of fixed
// weights: price vs cloud 2, Tenkan vs Kijun 1, cloud colour 1, Chikou
// confirmation 2, price vs Kijun 1. Direction requires the preset
// minimum score.
func (s *IchimokuStrategy) Analyze(candles []market.Candle, tf market.Timeframe, bundle *indicators.Bundle, cfg *config.EngineConfig) (*RawSignal, error) {
	preset, err := config.PresetFor(tf)
	if err != nil {
		return nil, fmt.Errorf("ichimoku analyze: %w", err)
	}

	signal := &RawSignal{Strategy: NameIchimoku, Timeframe: tf}
	periods := indicators.IchimokuPeriodsFor(tf)
	state := indicators.ComputeIchimoku(candles, periods)
	if state == nil {
		signal.Reasons = append(signal.Reasons,
			fmt.Sprintf("window of %d bars below ichimoku minimum %d", len(candles), periods.MinBars()))
		return signal, nil
	}

	score, reasons := ichimokuScore(state)
	signal.Score = score
	signal.AbsScore = absInt(score)
	signal.Reasons = append(signal.Reasons, reasons...)
	signal.Direction = directionFor(score, preset.MinScore)
	signal.Primitives = detectIchimokuPrimitives(candles, state, enabledSet(cfg))

	if !signal.HasDirection() {
		return signal, nil
	}

	votes, agreed := confluenceVotes(signal.Direction, bundle)
	signal.Confluence = votes
	for _, name := range agreed {
		signal.Reasons = append(signal.Reasons, name+" agrees")
	}
	s.attachLevels(signal, state, bundle)

	s.logger.Debug().
		Str("timeframe", tf.String()).
		Str("direction", signal.Direction.String()).
		Int("score", score).
		Int("confluence", votes).
		Msg("Ichimoku signal")
	return signal, nil
}

// ichimokuScore applies the fixed component weights to the state.
func ichimokuScore(st *indicators.IchimokuState) (int, []string) {
	score := 0
	var reasons []string

	switch {
	case st.Price > st.CloudTop:
		score += 2
		reasons = append(reasons, "price above cloud")
	case st.Price < st.CloudBottom:
		score -= 2
		reasons = append(reasons, "price below cloud")
	default:
		reasons = append(reasons, "price inside cloud")
	}

	if st.Tenkan > st.Kijun {
		score++
		reasons = append(reasons, "tenkan above kijun")
	} else if st.Tenkan < st.Kijun {
		score--
		reasons = append(reasons, "tenkan below kijun")
	}

	if st.SenkouA > st.SenkouB {
		score++
		reasons = append(reasons, "bullish cloud")
	} else if st.SenkouA < st.SenkouB {
		score--
		reasons = append(reasons, "bearish cloud")
	}

	if st.ChikouAbovePrice {
		score += 2
		reasons = append(reasons, "chikou above price")
	} else if st.ChikouBelowPrice {
		score -= 2
		reasons = append(reasons, "chikou below price")
	}

	if st.Price > st.Kijun {
		score++
	} else if st.Price < st.Kijun {
		score--
	}
	return score, reasons
}

// detectIchimokuPrimitives reports the four patterns present on the
// head bar. Strengths below minPrimitiveStrength and names outside the
// enabled set are dropped.
func detectIchimokuPrimitives(candles []market.Candle, st *indicators.IchimokuState, enabled map[string]bool) []PrimitiveSignal {
	var out []PrimitiveSignal
	keep := func(p PrimitiveSignal) {
		if p.Strength < minPrimitiveStrength {
			return
		}
		if enabled != nil && !enabled[p.Name] {
			return
		}
		out = append(out, p)
	}

	head := candles[len(candles)-1]
	prevClose := candles[len(candles)-2].Close
	prevTop := math.Max(st.PrevSenkouA, st.PrevSenkouB)
	prevBottom := math.Min(st.PrevSenkouA, st.PrevSenkouB)
	prevBullishCloud := st.PrevSenkouA > st.PrevSenkouB

	// Tenkan crossing Kijun on the head bar. The cross carries more
	// weight on the trending side of the cloud.
	if st.PrevTenkan <= st.PrevKijun && st.Tenkan > st.Kijun {
		strength := 0.5
		if st.Price > st.CloudTop {
			strength += 0.3
		}
		if st.BullishCloud {
			strength += 0.2
		}
		keep(PrimitiveSignal{Name: SignalTKCross, Direction: market.DirectionLong, Strength: clamp01(strength)})
	} else if st.PrevTenkan >= st.PrevKijun && st.Tenkan < st.Kijun {
		strength := 0.5
		if st.Price < st.CloudBottom {
			strength += 0.3
		}
		if !st.BullishCloud {
			strength += 0.2
		}
		keep(PrimitiveSignal{Name: SignalTKCross, Direction: market.DirectionShort, Strength: clamp01(strength)})
	}

	// Close crossing the cloud boundary on the head bar. Strength grows
	// with the penetration depth.
	if st.CloudTop > 0 && prevClose <= prevTop && st.Price > st.CloudTop {
		depthPct := (st.Price - st.CloudTop) / st.CloudTop * 100
		keep(PrimitiveSignal{Name: SignalKumoBreakout, Direction: market.DirectionLong, Strength: clamp01(0.4 + depthPct/2)})
	} else if st.CloudBottom > 0 && prevClose >= prevBottom && st.Price < st.CloudBottom {
		depthPct := (st.CloudBottom - st.Price) / st.CloudBottom * 100
		keep(PrimitiveSignal{Name: SignalKumoBreakout, Direction: market.DirectionShort, Strength: clamp01(0.4 + depthPct/2)})
	}

	// Cloud colour flip under the head bar.
	if !prevBullishCloud && st.SenkouA > st.SenkouB {
		strength := 0.4
		if st.Price > st.CloudTop {
			strength += 0.3
		}
		keep(PrimitiveSignal{Name: SignalKumoTwist, Direction: market.DirectionLong, Strength: clamp01(strength)})
	} else if prevBullishCloud && st.SenkouA < st.SenkouB {
		strength := 0.4
		if st.Price < st.CloudBottom {
			strength += 0.3
		}
		keep(PrimitiveSignal{Name: SignalKumoTwist, Direction: market.DirectionShort, Strength: clamp01(strength)})
	}

	// Intrabar tag of the Kijun with a close back on the trend side.
	if head.Low <= st.Kijun && head.Close > st.Kijun && head.Close > head.Open {
		strength := 0.4
		if st.Price > st.CloudTop {
			strength += 0.3
		}
		keep(PrimitiveSignal{Name: SignalKijunBounce, Direction: market.DirectionLong, Strength: clamp01(strength)})
	} else if head.High >= st.Kijun && head.Close < st.Kijun && head.Close < head.Open {
		strength := 0.4
		if st.Price < st.CloudBottom {
			strength += 0.3
		}
		keep(PrimitiveSignal{Name: SignalKijunBounce, Direction: market.DirectionShort, Strength: clamp01(strength)})
	}
	return out
}

// attachLevels proposes a stop and a target from the cloud structure,
// then EMA200, then the Bollinger bands, in that priority.
func (s *IchimokuStrategy) attachLevels(sig *RawSignal, st *indicators.IchimokuState, b *indicators.Bundle) {
	entry := st.Price
	var slCands, tpCands []levelCandidate

	if sig.Direction == market.DirectionLong {
		slCands = []levelCandidate{
			{st.Kijun, LevelSourceIchimoku},
			{st.CloudTop, LevelSourceIchimoku},
			{st.CloudBottom, LevelSourceIchimoku},
		}
		tpCands = []levelCandidate{
			{st.CloudTop, LevelSourceIchimoku},
		}
	} else {
		slCands = []levelCandidate{
			{st.Kijun, LevelSourceIchimoku},
			{st.CloudBottom, LevelSourceIchimoku},
			{st.CloudTop, LevelSourceIchimoku},
		}
		tpCands = []levelCandidate{
			{st.CloudBottom, LevelSourceIchimoku},
		}
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
