package indicators

import (
	"math"

	"github.com/ajitpratap0/kumotrade/internal/market"
)

// Trend-strength labels on the usual ADX bands.
const (
	TrendWeak       = "weak"
	TrendStrong     = "strong"
	TrendVeryStrong = "very_strong"
)

// ADXResult is the Average Directional Index at the window head.
// Direction comes from the +DI/-DI relation.
type ADXResult struct {
	Value         float64 `json:"value"`
	TrendStrength string  `json:"trend_strength"` // "weak", "strong", "very_strong"
	Direction     string  `json:"direction"`      // "bullish", "bearish", "neutral"
}

// ComputeADX computes ADX with Wilder smoothing. cinar/indicator v2
// does not ship ADX, so it is implemented here.
func ComputeADX(candles []market.Candle, period int) *ADXResult {
	n := len(candles)
	if period < 1 || n < period*2+1 {
		return nil
	}

	high := Highs(candles)
	low := Lows(candles)
	tr := trueRanges(candles)

	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		upMove := high[i] - high[i-1]
		downMove := low[i-1] - low[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	smoothTR := smoothWilder(tr, period)
	smoothPlusDM := smoothWilder(plusDM, period)
	smoothMinusDM := smoothWilder(minusDM, period)

	dx := make([]float64, n)
	var plusDI, minusDI float64
	for i := period; i < n; i++ {
		if smoothTR[i] == 0 {
			continue
		}
		plusDI = 100 * smoothPlusDM[i] / smoothTR[i]
		minusDI = 100 * smoothMinusDM[i] / smoothTR[i]
		sum := plusDI + minusDI
		if sum == 0 {
			continue
		}
		dx[i] = 100 * math.Abs(plusDI-minusDI) / sum
	}

	// ADX is the Wilder average of DX over the second period stretch.
	adx := 0.0
	for i := period; i < period*2; i++ {
		adx += dx[i]
	}
	adx /= float64(period)
	for i := period * 2; i < n; i++ {
		adx = (adx*float64(period-1) + dx[i]) / float64(period)
	}
	if !isUsable(adx) {
		return nil
	}

	strength := TrendWeak
	if adx >= 50 {
		strength = TrendVeryStrong
	} else if adx >= 25 {
		strength = TrendStrong
	}

	direction := SignalNeutral
	if plusDI > minusDI {
		direction = CrossoverBullish
	} else if minusDI > plusDI {
		direction = CrossoverBearish
	}

	return &ADXResult{Value: adx, TrendStrength: strength, Direction: direction}
}

// smoothWilder applies Wilder's smoothing to a series. The first
// period-1 slots are zero; index period-1 holds the seed sum average.
func smoothWilder(values []float64, period int) []float64 {
	n := len(values)
	out := make([]float64, n)
	if n < period {
		return out
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[period-1] = sum / float64(period)
	for i := period; i < n; i++ {
		out[i] = (out[i-1]*float64(period-1) + values[i]) / float64(period)
	}
	return out
}
