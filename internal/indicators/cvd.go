package indicators

import (
	"github.com/ajitpratap0/kumotrade/internal/market"
)

// CVDResult summarises cumulative volume delta over the window.
// Divergence flags a price/flow disagreement over the recent stretch.
type CVDResult struct {
	Value      float64 `json:"value"`
	Trend      string  `json:"trend"` // "bullish", "bearish", "neutral"
	Divergence bool    `json:"divergence"`
}

// ComputeCVD approximates per-bar delta as volume signed by the candle
// body direction and accumulates it. Trend compares the last delta
// stretch against zero; divergence compares price direction against
// flow direction over the same stretch.
func ComputeCVD(candles []market.Candle, lookback int) *CVDResult {
	if lookback < 2 || len(candles) < lookback {
		return nil
	}

	cvd := make([]float64, len(candles))
	running := 0.0
	for i, c := range candles {
		switch {
		case c.Close > c.Open:
			running += c.Volume
		case c.Close < c.Open:
			running -= c.Volume
		}
		cvd[i] = running
	}

	last := len(candles) - 1
	flowChange := cvd[last] - cvd[last-lookback+1]
	priceChange := candles[last].Close - candles[last-lookback+1].Close

	trend := SignalNeutral
	if flowChange > 0 {
		trend = CrossoverBullish
	} else if flowChange < 0 {
		trend = CrossoverBearish
	}

	divergence := (priceChange > 0 && flowChange < 0) || (priceChange < 0 && flowChange > 0)

	return &CVDResult{Value: cvd[last], Trend: trend, Divergence: divergence}
}
