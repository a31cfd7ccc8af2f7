package indicators

import (
	"github.com/cinar/indicator/v2/volatility"

	"github.com/ajitpratap0/kumotrade/internal/market"
)

// Band position labels.
const (
	BandAboveUpper = "above_upper"
	BandUpperHalf  = "upper_half"
	BandLowerHalf  = "lower_half"
	BandBelowLower = "below_lower"
)

// BollingerResult is the Bollinger Bands state at the window head.
// Squeeze is true when both bands sit inside the Keltner channel.
type BollingerResult struct {
	Upper    float64 `json:"upper"`
	Middle   float64 `json:"middle"`
	Lower    float64 `json:"lower"`
	Width    float64 `json:"width"` // (upper-lower)/middle * 100
	Position string  `json:"position"`
	Squeeze  bool    `json:"squeeze"`
}

// KeltnerChannel is an EMA mid line with ATR-scaled envelopes.
type KeltnerChannel struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// ComputeBollinger computes Bollinger Bands via cinar/indicator
// (fixed 2 standard deviations) and the Keltner squeeze state.
func ComputeBollinger(candles []market.Candle, period int) *BollingerResult {
	closes := Closes(candles)
	if period < 2 || len(closes) < period {
		return nil
	}

	pricesChan := make(chan float64, len(closes))
	for _, p := range closes {
		pricesChan <- p
	}
	close(pricesChan)

	bbIndicator := volatility.NewBollingerBandsWithPeriod[float64](period)
	lowerChan, middleChan, upperChan := bbIndicator.Compute(pricesChan)

	var lower, middle, upper float64
	var count int
	for {
		l, lok := <-lowerChan
		m, mok := <-middleChan
		u, uok := <-upperChan
		if !lok || !mok || !uok {
			break
		}
		lower, middle, upper = l, m, u
		count++
	}
	if count == 0 || !isUsable(middle) || middle == 0 {
		return nil
	}

	price := closes[len(closes)-1]
	position := BandLowerHalf
	switch {
	case price > upper:
		position = BandAboveUpper
	case price >= middle:
		position = BandUpperHalf
	case price < lower:
		position = BandBelowLower
	}

	result := &BollingerResult{
		Upper:    upper,
		Middle:   middle,
		Lower:    lower,
		Width:    (upper - lower) / middle * 100,
		Position: position,
	}

	if kc := ComputeKeltner(candles, period, 1.5); kc != nil {
		result.Squeeze = upper < kc.Upper && lower > kc.Lower
	}
	return result
}

// ComputeKeltner computes a Keltner channel: EMA(period) of closes with
// envelopes at mult * ATR(period).
func ComputeKeltner(candles []market.Candle, period int, mult float64) *KeltnerChannel {
	if period < 2 || len(candles) < period+1 {
		return nil
	}
	mid := lastValid(emaSeries(Closes(candles), period))
	atr := atrValue(candles, period)
	if !isUsable(mid) || !isUsable(atr) {
		return nil
	}
	return &KeltnerChannel{
		Upper:  mid + mult*atr,
		Middle: mid,
		Lower:  mid - mult*atr,
	}
}
