package indicators

import (
	"math"

	"github.com/ajitpratap0/kumotrade/internal/market"
)

// IchimokuPeriods are the line periods plus the cloud displacement.
type IchimokuPeriods struct {
	Tenkan       int
	Kijun        int
	SenkouB      int
	Displacement int
}

// IchimokuPeriodsFor returns timeframe-tuned periods: faster settings
// below 15m, the classic 9/26/52 for intraday, slower for 4h and up.
func IchimokuPeriodsFor(tf market.Timeframe) IchimokuPeriods {
	switch tf {
	case market.Timeframe1m, market.Timeframe5m:
		return IchimokuPeriods{Tenkan: 6, Kijun: 13, SenkouB: 26, Displacement: 13}
	case market.Timeframe4h, market.Timeframe1d:
		return IchimokuPeriods{Tenkan: 10, Kijun: 30, SenkouB: 60, Displacement: 30}
	default:
		return IchimokuPeriods{Tenkan: 9, Kijun: 26, SenkouB: 52, Displacement: 26}
	}
}

// MinBars is the smallest window the periods can be computed on.
func (p IchimokuPeriods) MinBars() int {
	return p.SenkouB + p.Displacement + 2
}

// IchimokuState is the Ichimoku system evaluated at the window head.
// SenkouA/SenkouB are the cloud edges under the current bar, i.e. the
// spans computed Displacement bars ago.
type IchimokuState struct {
	Price float64

	Tenkan     float64
	Kijun      float64
	PrevTenkan float64
	PrevKijun  float64

	SenkouA     float64
	SenkouB     float64
	PrevSenkouA float64
	PrevSenkouB float64

	CloudTop     float64
	CloudBottom  float64
	BullishCloud bool

	// Chikou confirmation: the current close against price and cloud
	// Displacement bars back.
	ChikouAbovePrice bool
	ChikouBelowPrice bool
	ChikouAboveCloud bool
	ChikouBelowCloud bool
}

// ComputeIchimoku evaluates the five-line system over the window.
// Returns nil when the window is shorter than periods.MinBars().
func ComputeIchimoku(candles []market.Candle, periods IchimokuPeriods) *IchimokuState {
	n := len(candles)
	if n < periods.MinBars() {
		return nil
	}

	high := Highs(candles)
	low := Lows(candles)

	tenkan := midlineSeries(high, low, periods.Tenkan)
	kijun := midlineSeries(high, low, periods.Kijun)
	senkouB := midlineSeries(high, low, periods.SenkouB)

	senkouA := make([]float64, n)
	for i := range senkouA {
		if isUsable(tenkan[i]) && isUsable(kijun[i]) {
			senkouA[i] = (tenkan[i] + kijun[i]) / 2
		} else {
			senkouA[i] = math.NaN()
		}
	}

	head := n - 1
	d := periods.Displacement
	cloudA := senkouA[head-d]
	cloudB := senkouB[head-d]
	prevCloudA := senkouA[head-d-1]
	prevCloudB := senkouB[head-d-1]
	if !isUsable(tenkan[head]) || !isUsable(kijun[head]) ||
		!isUsable(cloudA) || !isUsable(cloudB) {
		return nil
	}

	price := candles[head].Close
	state := &IchimokuState{
		Price:        price,
		Tenkan:       tenkan[head],
		Kijun:        kijun[head],
		PrevTenkan:   tenkan[head-1],
		PrevKijun:    kijun[head-1],
		SenkouA:      cloudA,
		SenkouB:      cloudB,
		PrevSenkouA:  prevCloudA,
		PrevSenkouB:  prevCloudB,
		CloudTop:     math.Max(cloudA, cloudB),
		CloudBottom:  math.Min(cloudA, cloudB),
		BullishCloud: cloudA > cloudB,
	}

	// Chikou sits Displacement bars back: compare the current close to
	// price action and the cloud of that bar.
	pastClose := candles[head-d].Close
	state.ChikouAbovePrice = price > pastClose
	state.ChikouBelowPrice = price < pastClose
	if head-2*d >= 0 {
		pastCloudA := senkouA[head-2*d]
		pastCloudB := senkouB[head-2*d]
		if isUsable(pastCloudA) && isUsable(pastCloudB) {
			state.ChikouAboveCloud = price > math.Max(pastCloudA, pastCloudB)
			state.ChikouBelowCloud = price < math.Min(pastCloudA, pastCloudB)
		}
	}
	return state
}

// midlineSeries is the Ichimoku line primitive: the midpoint of the
// highest high and lowest low over the trailing period.
func midlineSeries(high, low []float64, period int) []float64 {
	n := len(high)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if period < 1 || n < period {
		return out
	}
	for i := period - 1; i < n; i++ {
		hi, lo := math.Inf(-1), math.Inf(1)
		for j := i - period + 1; j <= i; j++ {
			hi = math.Max(hi, high[j])
			lo = math.Min(lo, low[j])
		}
		out[i] = (hi + lo) / 2
	}
	return out
}
