package indicators

import (
	"github.com/cinar/indicator/v2/trend"
)

// EMAResult is a single exponential moving average with the price
// distance to it.
type EMAResult struct {
	Value       float64 `json:"value"`
	DistancePct float64 `json:"distance_pct"` // (price-ema)/ema * 100, signed
	PriceAbove  bool    `json:"price_above"`
}

// ScalpingEMAResult is the fast EMA stack used by the short-timeframe
// strategies.
type ScalpingEMAResult struct {
	EMA9    float64 `json:"ema9"`
	EMA21   float64 `json:"ema21"`
	EMA50   float64 `json:"ema50"`
	Stacked string  `json:"stacked"` // "bullish", "bearish", "none"
}

// ComputeEMA computes an EMA via cinar/indicator and relates the last
// price to it.
func ComputeEMA(closes []float64, period int) *EMAResult {
	value := cinarEMA(closes, period)
	if !isUsable(value) || value == 0 {
		return nil
	}
	price := closes[len(closes)-1]
	return &EMAResult{
		Value:       value,
		DistancePct: (price - value) / value * 100,
		PriceAbove:  price > value,
	}
}

// ComputeScalpingEMAs computes the 9/21/50 stack.
func ComputeScalpingEMAs(closes []float64) *ScalpingEMAResult {
	ema9 := cinarEMA(closes, 9)
	ema21 := cinarEMA(closes, 21)
	ema50 := cinarEMA(closes, 50)
	if !isUsable(ema9) || !isUsable(ema21) || !isUsable(ema50) {
		return nil
	}

	stacked := "none"
	if ema9 > ema21 && ema21 > ema50 {
		stacked = CrossoverBullish
	} else if ema9 < ema21 && ema21 < ema50 {
		stacked = CrossoverBearish
	}
	return &ScalpingEMAResult{EMA9: ema9, EMA21: ema21, EMA50: ema50, Stacked: stacked}
}

// cinarEMA returns the EMA at the window head, or NaN when the window
// is too short.
func cinarEMA(closes []float64, period int) float64 {
	if period < 1 || len(closes) < period {
		return nan()
	}
	pricesChan := make(chan float64, len(closes))
	for _, p := range closes {
		pricesChan <- p
	}
	close(pricesChan)

	emaIndicator := trend.NewEmaWithPeriod[float64](period)
	emaChan := emaIndicator.Compute(pricesChan)

	value := nan()
	for v := range emaChan {
		value = v
	}
	return value
}
