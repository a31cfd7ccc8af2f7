package indicators

import (
	"github.com/cinar/indicator/v2/trend"
)

// Crossover labels for MACD histogram sign changes.
const (
	CrossoverBullish = "bullish"
	CrossoverBearish = "bearish"
	CrossoverNone    = "none"
)

// MACDResult is the MACD state at the window head.
type MACDResult struct {
	Value     float64 `json:"value"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
	Crossover string  `json:"crossover"` // "bullish", "bearish", "none"
}

// ComputeMACD computes MACD via cinar/indicator. A crossover is
// reported when the histogram changed sign on the most recent bar.
func ComputeMACD(closes []float64, fast, slow, signalPeriod int) *MACDResult {
	if fast < 1 || slow <= fast || signalPeriod < 1 {
		return nil
	}
	if len(closes) < slow+signalPeriod {
		return nil
	}

	pricesChan := make(chan float64, len(closes))
	for _, p := range closes {
		pricesChan <- p
	}
	close(pricesChan)

	macdIndicator := trend.NewMacdWithPeriod[float64](fast, slow, signalPeriod)
	macdChan, signalChan := macdIndicator.Compute(pricesChan)

	var macdValues, signalValues []float64
	for {
		m, mok := <-macdChan
		s, sok := <-signalChan
		if !mok || !sok {
			break
		}
		macdValues = append(macdValues, m)
		signalValues = append(signalValues, s)
	}
	if len(macdValues) < 2 {
		return nil
	}

	last := len(macdValues) - 1
	currentMACD := macdValues[last]
	currentSignal := signalValues[last]
	if !isUsable(currentMACD) || !isUsable(currentSignal) {
		return nil
	}

	histogram := currentMACD - currentSignal
	prevHistogram := macdValues[last-1] - signalValues[last-1]

	crossover := CrossoverNone
	if prevHistogram <= 0 && histogram > 0 {
		crossover = CrossoverBullish
	} else if prevHistogram >= 0 && histogram < 0 {
		crossover = CrossoverBearish
	}

	return &MACDResult{
		Value:     currentMACD,
		Signal:    currentSignal,
		Histogram: histogram,
		Crossover: crossover,
	}
}
