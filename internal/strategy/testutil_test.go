package strategy

import (
	"github.com/ajitpratap0/kumotrade/internal/market"
)

const testBaseTS = int64(1700000000000)

// flatWindow builds n bars with a constant close and fixed spread.
func flatWindow(n int, price, spread float64) []market.Candle {
	candles := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		candles[i] = market.Candle{
			Timestamp: testBaseTS + int64(i)*60000,
			Open:      price,
			High:      price + spread,
			Low:       price - spread,
			Close:     price,
			Volume:    1000,
		}
	}
	return candles
}

// rampWindow builds an accelerating trend with close_i = start +
// accel*i*i. Negative accel mirrors the decline. The growing step keeps
// the MACD histogram away from zero, unlike a linear ramp.
func rampWindow(n int, start, accel, spread float64) []market.Candle {
	candles := make([]market.Candle, n)
	prev := start
	for i := 0; i < n; i++ {
		close_ := start + accel*float64(i)*float64(i)
		open := prev
		hi, lo := open, open
		if close_ > hi {
			hi = close_
		}
		if close_ < lo {
			lo = close_
		}
		candles[i] = market.Candle{
			Timestamp: testBaseTS + int64(i)*60000,
			Open:      open,
			High:      hi + spread,
			Low:       lo - spread,
			Close:     close_,
			Volume:    1000,
		}
		prev = close_
	}
	return candles
}
