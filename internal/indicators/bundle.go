package indicators

import (
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/kumotrade/internal/market"
)

// Window bounds for the bundle. Below MinWindow nothing is computed;
// EMA200 additionally needs EMA200Window bars.
const (
	MinWindow    = 60
	EMA200Window = 250
)

// Default periods for the bundle indicators.
const (
	defaultRSIPeriod      = 14
	defaultStochPeriod    = 14
	defaultStochSmooth    = 3
	defaultMACDFast       = 12
	defaultMACDSlow       = 26
	defaultMACDSignal     = 9
	defaultBollingerSpan  = 20
	defaultVolumeSpan     = 20
	defaultVWAPSpan       = 50
	defaultFlowLookback   = 20
	defaultMomentumSpan   = 10
	defaultADXPeriod      = 14
	defaultATRPeriod      = 14
	defaultEMA200Period   = 200
)

// Bundle is the named indicator set for one (symbol, timeframe) window.
// A nil field means the indicator could not be computed on the given
// window; callers treat nil as unknown and never block on it.
type Bundle struct {
	Timeframe market.Timeframe `json:"timeframe"`
	Price     float64          `json:"price"`
	Bars      int              `json:"bars"`

	RSI          *RSIResult         `json:"rsi,omitempty"`
	StochRSI     *StochRSIResult    `json:"stoch_rsi,omitempty"`
	MACD         *MACDResult        `json:"macd,omitempty"`
	Bollinger    *BollingerResult   `json:"bollinger,omitempty"`
	Volume       *VolumeResult      `json:"volume,omitempty"`
	VWAP         *VWAPResult        `json:"vwap,omitempty"`
	CVD          *CVDResult         `json:"cvd,omitempty"`
	EMA200       *EMAResult         `json:"ema200,omitempty"`
	ScalpingEMAs *ScalpingEMAResult `json:"scalping_emas,omitempty"`
	ADX          *ADXResult         `json:"adx,omitempty"`
	ATR          *ATRResult         `json:"atr,omitempty"`
	Momentum     *MomentumResult    `json:"momentum,omitempty"`
	OBV          *OBVResult         `json:"obv,omitempty"`
}

// AnalyzeAll computes the full bundle over a candle window. Pure: no
// I/O, no shared state. Windows below MinWindow yield an empty bundle.
func AnalyzeAll(candles []market.Candle, tf market.Timeframe) *Bundle {
	bundle := &Bundle{
		Timeframe: tf,
		Price:     market.LastClose(candles),
		Bars:      len(candles),
	}
	if len(candles) < MinWindow {
		log.Debug().
			Str("timeframe", tf.String()).
			Int("bars", len(candles)).
			Int("min", MinWindow).
			Msg("Window below indicator minimum, returning empty bundle")
		return bundle
	}

	closes := Closes(candles)

	bundle.RSI = ComputeRSI(closes, defaultRSIPeriod)
	bundle.StochRSI = ComputeStochRSI(closes, defaultRSIPeriod, defaultStochPeriod, defaultStochSmooth, defaultStochSmooth)
	bundle.MACD = ComputeMACD(closes, defaultMACDFast, defaultMACDSlow, defaultMACDSignal)
	bundle.Bollinger = ComputeBollinger(candles, defaultBollingerSpan)
	bundle.Volume = ComputeVolume(candles, defaultVolumeSpan)
	bundle.VWAP = ComputeVWAP(candles, defaultVWAPSpan)
	bundle.CVD = ComputeCVD(candles, defaultFlowLookback)
	bundle.ScalpingEMAs = ComputeScalpingEMAs(closes)
	bundle.ADX = ComputeADX(candles, defaultADXPeriod)
	bundle.ATR = ComputeATR(candles, defaultATRPeriod)
	bundle.Momentum = ComputeMomentum(closes, defaultMomentumSpan)
	bundle.OBV = ComputeOBV(candles, defaultFlowLookback)

	if len(candles) >= EMA200Window {
		bundle.EMA200 = ComputeEMA(closes, defaultEMA200Period)
	}
	return bundle
}

// ADXValue returns the ADX value or 0 when unavailable. Callers treat 0
// as "unknown, skip the filter".
func (b *Bundle) ADXValue() float64 {
	if b == nil || b.ADX == nil {
		return 0
	}
	return b.ADX.Value
}

// RSIValue returns the RSI value, or the neutral 50 when unavailable.
func (b *Bundle) RSIValue() float64 {
	if b == nil || b.RSI == nil {
		return 50
	}
	return b.RSI.Value
}

// ATRPercent returns ATR as a percent of price, or 0 when unavailable.
func (b *Bundle) ATRPercent() float64 {
	if b == nil || b.ATR == nil {
		return 0
	}
	return b.ATR.Percent
}

// VolatilityClass returns the ATR volatility class, or "" when
// unavailable.
func (b *Bundle) VolatilityClass() string {
	if b == nil || b.ATR == nil {
		return ""
	}
	return b.ATR.Volatility
}
