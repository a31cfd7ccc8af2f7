package strategy

import (
	"time"

	"github.com/ajitpratap0/kumotrade/internal/market"
)

// Range-position labels for the premium/discount split.
const (
	ZonePremium     = "premium"
	ZoneDiscount    = "discount"
	ZoneEquilibrium = "equilibrium"
)

// Session labels by UTC clock.
const (
	SessionAsia    = "asia"
	SessionLondon  = "london"
	SessionNewYork = "newyork"
)

// Detection windows. Indices in the feature structs are relative to the
// scanned tail, which covers at most structureLookback bars.
const (
	smcMinBars        = 30
	structureLookback = 100
	blockLookback     = 40
	sweepLookback     = 5
	swingWing         = 2
	equilibriumBand   = 0.1 // half-width of the neutral zone, as a range fraction
)

// OrderBlock is the last opposite candle before a displacement move.
// Invalidated blocks had a later close through the far side.
type OrderBlock struct {
	Direction   market.Direction `json:"direction"`
	High        float64          `json:"high"`
	Low         float64          `json:"low"`
	Index       int              `json:"index"`
	Invalidated bool             `json:"invalidated"`
}

// FairValueGap is a three-candle imbalance. Filled gaps had a later bar
// trade fully through them.
type FairValueGap struct {
	Direction market.Direction `json:"direction"`
	Top       float64          `json:"top"`
	Bottom    float64          `json:"bottom"`
	Index     int              `json:"index"`
	Filled    bool             `json:"filled"`
}

// StructureBreak is the head close through the most recent confirmed
// swing level.
type StructureBreak struct {
	Direction market.Direction `json:"direction"`
	Level     float64          `json:"level"`
	Index     int              `json:"index"`
}

// LiquiditySweep is an intrabar raid of a swing level that closed back
// through it. Direction is the implied reversal side.
type LiquiditySweep struct {
	Direction market.Direction `json:"direction"`
	Level     float64          `json:"level"`
	Index     int              `json:"index"`
}

// SMCFeatures is the structural read of one window.
type SMCFeatures struct {
	OrderBlocks []OrderBlock    `json:"order_blocks,omitempty"`
	Gaps        []FairValueGap  `json:"gaps,omitempty"`
	Break       *StructureBreak `json:"break,omitempty"`
	Sweeps      []LiquiditySweep `json:"sweeps,omitempty"`
	Zone        string          `json:"zone"`
	Session     string          `json:"session"`
	RangeHigh   float64         `json:"range_high"`
	RangeLow    float64         `json:"range_low"`
}

// DetectSMCFeatures scans the window tail for structural primitives.
// Returns nil when the window is shorter than smcMinBars.
func DetectSMCFeatures(candles []market.Candle) *SMCFeatures {
	if len(candles) < smcMinBars {
		return nil
	}
	start := len(candles) - structureLookback
	if start < 0 {
		start = 0
	}
	win := candles[start:]
	head := win[len(win)-1]

	f := &SMCFeatures{Session: sessionOf(head.OpenTime())}
	f.RangeHigh, f.RangeLow = windowRange(win)
	f.Zone = zoneOf(head.Close, f.RangeHigh, f.RangeLow)

	highs, lows := swingPoints(win)
	f.Break = detectBreak(win, highs, lows)
	f.Sweeps = detectSweeps(win, highs, lows)
	f.OrderBlocks = detectOrderBlocks(win)
	f.Gaps = detectGaps(win)
	return f
}

func windowRange(win []market.Candle) (high, low float64) {
	high, low = win[0].High, win[0].Low
	for _, c := range win[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return high, low
}

// zoneOf splits the working range into premium, discount, and a neutral
// band around the midpoint.
func zoneOf(price, rangeHigh, rangeLow float64) string {
	span := rangeHigh - rangeLow
	if span <= 0 {
		return ZoneEquilibrium
	}
	mid := (rangeHigh + rangeLow) / 2
	band := span * equilibriumBand
	switch {
	case price > mid+band:
		return ZonePremium
	case price < mid-band:
		return ZoneDiscount
	default:
		return ZoneEquilibrium
	}
}

// sessionOf tags the bar by UTC clock: London 07-12, New York 13-20
// with the overlap folded into New York, Asia otherwise.
func sessionOf(t time.Time) string {
	switch h := t.UTC().Hour(); {
	case h >= 7 && h < 13:
		return SessionLondon
	case h >= 13 && h < 21:
		return SessionNewYork
	default:
		return SessionAsia
	}
}

// swingPoints returns fractal pivots: a swing high is strictly the
// highest high of its swingWing-bar neighbourhood on each side.
func swingPoints(win []market.Candle) (highs, lows []int) {
	for i := swingWing; i < len(win)-swingWing; i++ {
		isHigh, isLow := true, true
		for d := 1; d <= swingWing; d++ {
			if win[i].High <= win[i-d].High || win[i].High <= win[i+d].High {
				isHigh = false
			}
			if win[i].Low >= win[i-d].Low || win[i].Low >= win[i+d].Low {
				isLow = false
			}
		}
		if isHigh {
			highs = append(highs, i)
		}
		if isLow {
			lows = append(lows, i)
		}
	}
	return highs, lows
}

// detectBreak compares the head close to the most recent confirmed
// swing on each side. The bullish side wins when both would read.
func detectBreak(win []market.Candle, highs, lows []int) *StructureBreak {
	head := win[len(win)-1].Close
	if len(highs) > 0 {
		i := highs[len(highs)-1]
		if level := win[i].High; head > level {
			return &StructureBreak{Direction: market.DirectionLong, Level: level, Index: i}
		}
	}
	if len(lows) > 0 {
		i := lows[len(lows)-1]
		if level := win[i].Low; head < level {
			return &StructureBreak{Direction: market.DirectionShort, Level: level, Index: i}
		}
	}
	return nil
}

// detectSweeps flags bars in the last sweepLookback stretch that pierced
// a prior swing level intrabar but closed back through it.
func detectSweeps(win []market.Candle, highs, lows []int) []LiquiditySweep {
	var out []LiquiditySweep
	from := len(win) - sweepLookback
	if from < swingWing+1 {
		from = swingWing + 1
	}
	for i := from; i < len(win); i++ {
		c := win[i]
		for j := len(lows) - 1; j >= 0; j-- {
			li := lows[j]
			if li >= i {
				continue
			}
			if level := win[li].Low; c.Low < level && c.Close > level {
				out = append(out, LiquiditySweep{Direction: market.DirectionLong, Level: level, Index: i})
				break
			}
		}
		for j := len(highs) - 1; j >= 0; j-- {
			hi := highs[j]
			if hi >= i {
				continue
			}
			if level := win[hi].High; c.High > level && c.Close < level {
				out = append(out, LiquiditySweep{Direction: market.DirectionShort, Level: level, Index: i})
				break
			}
		}
	}
	return out
}

// detectOrderBlocks finds the last opposite candle before a two-bar
// displacement. The block zone is the candle's full range.
func detectOrderBlocks(win []market.Candle) []OrderBlock {
	var out []OrderBlock
	from := len(win) - blockLookback
	if from < 0 {
		from = 0
	}
	for i := from; i+2 < len(win); i++ {
		c := win[i]
		if c.Close < c.Open && win[i+1].Close > c.High && win[i+2].Close > win[i+1].Close {
			out = append(out, OrderBlock{
				Direction:   market.DirectionLong,
				High:        c.High,
				Low:         c.Low,
				Index:       i,
				Invalidated: anyCloseBelow(win, i+3, c.Low),
			})
		}
		if c.Close > c.Open && win[i+1].Close < c.Low && win[i+2].Close < win[i+1].Close {
			out = append(out, OrderBlock{
				Direction:   market.DirectionShort,
				High:        c.High,
				Low:         c.Low,
				Index:       i,
				Invalidated: anyCloseAbove(win, i+3, c.High),
			})
		}
	}
	return out
}

// detectGaps finds three-candle imbalances.
func detectGaps(win []market.Candle) []FairValueGap {
	var out []FairValueGap
	from := len(win) - blockLookback
	if from < 2 {
		from = 2
	}
	for i := from; i < len(win); i++ {
		if win[i].Low > win[i-2].High {
			g := FairValueGap{
				Direction: market.DirectionLong,
				Top:       win[i].Low,
				Bottom:    win[i-2].High,
				Index:     i,
			}
			g.Filled = anyLowAtOrBelow(win, i+1, g.Bottom)
			out = append(out, g)
		}
		if win[i].High < win[i-2].Low {
			g := FairValueGap{
				Direction: market.DirectionShort,
				Top:       win[i-2].Low,
				Bottom:    win[i].High,
				Index:     i,
			}
			g.Filled = anyHighAtOrAbove(win, i+1, g.Top)
			out = append(out, g)
		}
	}
	return out
}

func anyCloseBelow(win []market.Candle, from int, level float64) bool {
	for i := from; i < len(win); i++ {
		if win[i].Close < level {
			return true
		}
	}
	return false
}

func anyCloseAbove(win []market.Candle, from int, level float64) bool {
	for i := from; i < len(win); i++ {
		if win[i].Close > level {
			return true
		}
	}
	return false
}

func anyLowAtOrBelow(win []market.Candle, from int, level float64) bool {
	for i := from; i < len(win); i++ {
		if win[i].Low <= level {
			return true
		}
	}
	return false
}

func anyHighAtOrAbove(win []market.Candle, from int, level float64) bool {
	for i := from; i < len(win); i++ {
		if win[i].High >= level {
			return true
		}
	}
	return false
}

// activeBlockAt returns the most recent live block containing price.
func activeBlockAt(price float64, blocks []OrderBlock) *OrderBlock {
	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		if b.Invalidated {
			continue
		}
		if price >= b.Low && price <= b.High {
			return &blocks[i]
		}
	}
	return nil
}

// openGapAt returns the most recent unfilled gap containing price.
func openGapAt(price float64, gaps []FairValueGap) *FairValueGap {
	for i := len(gaps) - 1; i >= 0; i-- {
		g := gaps[i]
		if g.Filled {
			continue
		}
		if price >= g.Bottom && price <= g.Top {
			return &gaps[i]
		}
	}
	return nil
}

// latestSweep returns the most recent sweep, or nil.
func latestSweep(sweeps []LiquiditySweep) *LiquiditySweep {
	if len(sweeps) == 0 {
		return nil
	}
	return &sweeps[len(sweeps)-1]
}
