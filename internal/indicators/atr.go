package indicators

import (
	"github.com/ajitpratap0/kumotrade/internal/market"
)

// Volatility classes derived from ATR as a percentage of price.
const (
	VolatilityLow    = "low"
	VolatilityNormal = "normal"
	VolatilityHigh   = "high"
)

// ATR-percent boundaries for the volatility classes.
const (
	atrLowPct  = 0.5
	atrHighPct = 2.0
)

// ATRResult is the Average True Range at the window head.
type ATRResult struct {
	Value      float64 `json:"value"`
	Percent    float64 `json:"percent"` // ATR / price * 100
	Volatility string  `json:"volatility"`
}

// ComputeATR computes a Wilder-smoothed ATR. cinar/indicator does not
// ship ATR, so it is implemented here.
func ComputeATR(candles []market.Candle, period int) *ATRResult {
	value := atrValue(candles, period)
	if !isUsable(value) {
		return nil
	}
	price := candles[len(candles)-1].Close
	if price <= 0 {
		return nil
	}
	percent := value / price * 100

	volatility := VolatilityNormal
	if percent < atrLowPct {
		volatility = VolatilityLow
	} else if percent >= atrHighPct {
		volatility = VolatilityHigh
	}
	return &ATRResult{Value: value, Percent: percent, Volatility: volatility}
}

// atrValue returns the Wilder ATR at the window head, or NaN when the
// window is shorter than period+1 bars.
func atrValue(candles []market.Candle, period int) float64 {
	if period < 1 || len(candles) < period+1 {
		return nan()
	}
	tr := trueRanges(candles)

	// Seed with the simple average of the first period true ranges
	// (skipping index 0, which has no previous close), then apply
	// Wilder smoothing.
	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += tr[i]
	}
	atr /= float64(period)
	for i := period + 1; i < len(tr); i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
	}
	return atr
}
