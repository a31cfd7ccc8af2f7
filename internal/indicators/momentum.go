package indicators

// MomentumResult is the rate of change over the lookback.
type MomentumResult struct {
	Value     float64 `json:"value"`      // close[t] - close[t-n]
	ROC       float64 `json:"roc"`        // percent change over n bars
	Direction string  `json:"direction"`  // "bullish", "bearish", "neutral"
}

// ComputeMomentum measures close-to-close change over lookback bars.
func ComputeMomentum(closes []float64, lookback int) *MomentumResult {
	if lookback < 1 || len(closes) < lookback+1 {
		return nil
	}
	last := len(closes) - 1
	prev := closes[last-lookback]
	if prev == 0 {
		return nil
	}
	change := closes[last] - prev
	roc := change / prev * 100

	direction := SignalNeutral
	if change > 0 {
		direction = CrossoverBullish
	} else if change < 0 {
		direction = CrossoverBearish
	}
	return &MomentumResult{Value: change, ROC: roc, Direction: direction}
}
