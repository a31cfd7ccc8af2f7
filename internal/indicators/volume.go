package indicators

import (
	"github.com/ajitpratap0/kumotrade/internal/market"
)

// Volume spikes are flagged at this multiple of the rolling mean.
const volumeSpikeRatio = 2.0

// VolumeResult relates the last bar's volume to the rolling mean.
type VolumeResult struct {
	Current float64 `json:"current"`
	Average float64 `json:"average"`
	Ratio   float64 `json:"ratio"`
	Spike   bool    `json:"spike"`
}

// ComputeVolume computes the ratio of the head bar's volume to the mean
// of the preceding period bars.
func ComputeVolume(candles []market.Candle, period int) *VolumeResult {
	if period < 1 || len(candles) < period+1 {
		return nil
	}

	last := len(candles) - 1
	sum := 0.0
	for i := last - period; i < last; i++ {
		sum += candles[i].Volume
	}
	avg := sum / float64(period)
	if avg <= 0 {
		return nil
	}

	current := candles[last].Volume
	ratio := current / avg
	return &VolumeResult{
		Current: current,
		Average: avg,
		Ratio:   ratio,
		Spike:   ratio >= volumeSpikeRatio,
	}
}
