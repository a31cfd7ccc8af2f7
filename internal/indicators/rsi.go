package indicators

import (
	"math"

	"github.com/cinar/indicator/v2/momentum"
)

// Signal labels shared by the momentum indicators.
const (
	SignalOversold   = "oversold"
	SignalOverbought = "overbought"
	SignalNeutral    = "neutral"
)

// RSIResult is the Relative Strength Index at the window head.
type RSIResult struct {
	Value  float64 `json:"value"`
	Signal string  `json:"signal"` // "oversold", "overbought", "neutral"
}

// StochRSIResult is the stochastic oscillator applied to the RSI
// series.
type StochRSIResult struct {
	K      float64 `json:"k"`
	D      float64 `json:"d"`
	Signal string  `json:"signal"`
}

// rsiSeries computes the RSI series via cinar/indicator.
func rsiSeries(closes []float64, period int) []float64 {
	if period < 1 || len(closes) <= period {
		return nil
	}
	pricesChan := make(chan float64, len(closes))
	for _, p := range closes {
		pricesChan <- p
	}
	close(pricesChan)

	rsiIndicator := momentum.NewRsiWithPeriod[float64](period)
	rsiChan := rsiIndicator.Compute(pricesChan)

	var values []float64
	for v := range rsiChan {
		values = append(values, v)
	}
	return values
}

// ComputeRSI computes the current RSI with the standard 30/70 bands.
func ComputeRSI(closes []float64, period int) *RSIResult {
	values := rsiSeries(closes, period)
	if len(values) == 0 {
		return nil
	}
	current := values[len(values)-1]
	if !isUsable(current) {
		return nil
	}

	signal := SignalNeutral
	if current < 30 {
		signal = SignalOversold
	} else if current > 70 {
		signal = SignalOverbought
	}
	return &RSIResult{Value: current, Signal: signal}
}

// ComputeStochRSI applies a stochastic window over the RSI series.
// K is smoothed over smoothK bars, D is the smoothD-bar average of K.
func ComputeStochRSI(closes []float64, rsiPeriod, stochPeriod, smoothK, smoothD int) *StochRSIResult {
	rsi := rsiSeries(closes, rsiPeriod)
	if len(rsi) < stochPeriod+smoothK+smoothD {
		return nil
	}

	raw := make([]float64, 0, len(rsi)-stochPeriod+1)
	for i := stochPeriod - 1; i < len(rsi); i++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for j := i - stochPeriod + 1; j <= i; j++ {
			lo = math.Min(lo, rsi[j])
			hi = math.Max(hi, rsi[j])
		}
		if hi == lo {
			raw = append(raw, 50)
			continue
		}
		raw = append(raw, 100*(rsi[i]-lo)/(hi-lo))
	}

	kSeries := smaSeries(raw, smoothK)
	kValid := kSeries[:0:0]
	for _, v := range kSeries {
		if isUsable(v) {
			kValid = append(kValid, v)
		}
	}
	if len(kValid) < smoothD {
		return nil
	}
	k := kValid[len(kValid)-1]
	d := 0.0
	for _, v := range kValid[len(kValid)-smoothD:] {
		d += v
	}
	d /= float64(smoothD)

	signal := SignalNeutral
	if k < 20 && d < 20 {
		signal = SignalOversold
	} else if k > 80 && d > 80 {
		signal = SignalOverbought
	}
	return &StochRSIResult{K: k, D: d, Signal: signal}
}
