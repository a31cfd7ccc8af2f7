package indicators

import (
	"github.com/ajitpratap0/kumotrade/internal/market"
)

// OBVResult summarises on-balance volume over the window.
type OBVResult struct {
	Value      float64 `json:"value"`
	Trend      string  `json:"trend"` // "bullish", "bearish", "neutral"
	Divergence bool    `json:"divergence"`
}

// ComputeOBV accumulates volume signed by close-to-close direction.
// Divergence flags price making a new extreme over the lookback while
// OBV does not confirm it.
func ComputeOBV(candles []market.Candle, lookback int) *OBVResult {
	if lookback < 2 || len(candles) < lookback+1 {
		return nil
	}

	obv := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		obv[i] = obv[i-1]
		switch {
		case candles[i].Close > candles[i-1].Close:
			obv[i] += candles[i].Volume
		case candles[i].Close < candles[i-1].Close:
			obv[i] -= candles[i].Volume
		}
	}

	last := len(candles) - 1
	start := last - lookback + 1
	obvChange := obv[last] - obv[start]

	trend := SignalNeutral
	if obvChange > 0 {
		trend = CrossoverBullish
	} else if obvChange < 0 {
		trend = CrossoverBearish
	}

	// Price extreme without an OBV extreme in the same direction.
	priceHigh, priceLow := candles[start].Close, candles[start].Close
	obvHigh, obvLow := obv[start], obv[start]
	for i := start; i < last; i++ {
		if candles[i].Close > priceHigh {
			priceHigh = candles[i].Close
		}
		if candles[i].Close < priceLow {
			priceLow = candles[i].Close
		}
		if obv[i] > obvHigh {
			obvHigh = obv[i]
		}
		if obv[i] < obvLow {
			obvLow = obv[i]
		}
	}
	divergence := (candles[last].Close > priceHigh && obv[last] < obvHigh) ||
		(candles[last].Close < priceLow && obv[last] > obvLow)

	return &OBVResult{Value: obv[last], Trend: trend, Divergence: divergence}
}
