package indicators

import (
	"github.com/ajitpratap0/kumotrade/internal/market"
)

// Price-relative position labels.
const (
	PositionAbove = "above"
	PositionBelow = "below"
)

// VWAPResult relates the last price to the rolling volume-weighted
// average price.
type VWAPResult struct {
	Value       float64 `json:"value"`
	Position    string  `json:"position"` // "above", "below"
	DistancePct float64 `json:"distance_pct"`
}

// ComputeVWAP computes a rolling VWAP over the last period bars using
// the typical price (H+L+C)/3.
func ComputeVWAP(candles []market.Candle, period int) *VWAPResult {
	if period < 1 || len(candles) < period {
		return nil
	}
	window := candles[len(candles)-period:]

	var pvSum, volSum float64
	for _, c := range window {
		typical := (c.High + c.Low + c.Close) / 3
		pvSum += typical * c.Volume
		volSum += c.Volume
	}
	if volSum == 0 {
		return nil
	}
	vwap := pvSum / volSum
	if !isUsable(vwap) || vwap == 0 {
		return nil
	}

	price := candles[len(candles)-1].Close
	position := PositionBelow
	if price > vwap {
		position = PositionAbove
	}
	return &VWAPResult{
		Value:       vwap,
		Position:    position,
		DistancePct: (price - vwap) / vwap * 100,
	}
}
