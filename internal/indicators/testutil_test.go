package indicators

import (
	"github.com/ajitpratap0/kumotrade/internal/market"
)

// trendCandles builds n bars whose closes move by step per bar with the
// given intra-bar spread around the close.
func trendCandles(n int, start, step, spread float64) []market.Candle {
	candles := make([]market.Candle, n)
	close_ := start
	for i := 0; i < n; i++ {
		open := close_
		close_ = open + step
		hi := open
		if close_ > hi {
			hi = close_
		}
		lo := open
		if close_ < lo {
			lo = close_
		}
		candles[i] = market.Candle{
			Timestamp: 1700000000000 + int64(i)*60000,
			Open:      open,
			High:      hi + spread,
			Low:       lo - spread,
			Close:     close_,
			Volume:    1000,
		}
	}
	return candles
}

// flatCandles builds n bars with a constant close and fixed spread.
func flatCandles(n int, price, spread float64) []market.Candle {
	candles := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		candles[i] = market.Candle{
			Timestamp: 1700000000000 + int64(i)*60000,
			Open:      price,
			High:      price + spread,
			Low:       price - spread,
			Close:     price,
			Volume:    1000,
		}
	}
	return candles
}

// zigzagCandles alternates the close by +/- amp around base.
func zigzagCandles(n int, base, amp float64) []market.Candle {
	candles := make([]market.Candle, n)
	for i := 0; i < n; i++ {
		close_ := base + amp
		if i%2 == 1 {
			close_ = base - amp
		}
		open := base
		hi := close_
		if open > hi {
			hi = open
		}
		lo := close_
		if open < lo {
			lo = open
		}
		candles[i] = market.Candle{
			Timestamp: 1700000000000 + int64(i)*60000,
			Open:      open,
			High:      hi + 1,
			Low:       lo - 1,
			Close:     close_,
			Volume:    1000,
		}
	}
	return candles
}
