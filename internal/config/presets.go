package config

import (
	"fmt"
	"time"

	"github.com/ajitpratap0/kumotrade/internal/market"
)

// TimeframePreset holds the per-timeframe grading thresholds. Presets
// are read-only; runtime overrides go through EngineConfig.
type TimeframePreset struct {
	Timeframe         market.Timeframe `json:"timeframe" yaml:"timeframe"`
	MinScore          int              `json:"min_score" yaml:"min_score"`
	MinWinProbability float64          `json:"min_win_probability" yaml:"min_win_probability"`
	MinConfluence     int              `json:"min_confluence" yaml:"min_confluence"`
	RSILongMax        float64          `json:"rsi_long_max" yaml:"rsi_long_max"`
	RSIShortMin       float64          `json:"rsi_short_min" yaml:"rsi_short_min"`
	ADXMin            float64          `json:"adx_min" yaml:"adx_min"`
	MinRRR            float64          `json:"min_rrr" yaml:"min_rrr"`
	AnalysisInterval  time.Duration    `json:"analysis_interval" yaml:"analysis_interval"`
	DefaultTPPct      float64          `json:"default_tp_pct" yaml:"default_tp_pct"`
	DefaultSLPct      float64          `json:"default_sl_pct" yaml:"default_sl_pct"`
}

// Scalping timeframes demand more score and confluence because noise
// dominates; higher timeframes trade less often and tolerate wider
// stops.
var timeframePresets = map[market.Timeframe]TimeframePreset{
	market.Timeframe1m: {
		Timeframe:         market.Timeframe1m,
		MinScore:          5,
		MinWinProbability: 0.70,
		MinConfluence:     4,
		RSILongMax:        62,
		RSIShortMin:       25,
		ADXMin:            20,
		MinRRR:            1.2,
		AnalysisInterval:  15 * time.Second,
		DefaultTPPct:      0.8,
		DefaultSLPct:      0.4,
	},
	market.Timeframe5m: {
		Timeframe:         market.Timeframe5m,
		MinScore:          4,
		MinWinProbability: 0.68,
		MinConfluence:     3,
		RSILongMax:        65,
		RSIShortMin:       22,
		ADXMin:            18,
		MinRRR:            1.1,
		AnalysisInterval:  30 * time.Second,
		DefaultTPPct:      1.2,
		DefaultSLPct:      0.6,
	},
	market.Timeframe15m: {
		Timeframe:         market.Timeframe15m,
		MinScore:          3,
		MinWinProbability: 0.65,
		MinConfluence:     2,
		RSILongMax:        70,
		RSIShortMin:       20,
		ADXMin:            15,
		MinRRR:            1.0,
		AnalysisInterval:  60 * time.Second,
		DefaultTPPct:      2.0,
		DefaultSLPct:      1.0,
	},
	market.Timeframe30m: {
		Timeframe:         market.Timeframe30m,
		MinScore:          3,
		MinWinProbability: 0.63,
		MinConfluence:     2,
		RSILongMax:        70,
		RSIShortMin:       20,
		ADXMin:            15,
		MinRRR:            1.0,
		AnalysisInterval:  90 * time.Second,
		DefaultTPPct:      2.5,
		DefaultSLPct:      1.25,
	},
	market.Timeframe1h: {
		Timeframe:         market.Timeframe1h,
		MinScore:          3,
		MinWinProbability: 0.62,
		MinConfluence:     2,
		RSILongMax:        72,
		RSIShortMin:       20,
		ADXMin:            12,
		MinRRR:            1.0,
		AnalysisInterval:  2 * time.Minute,
		DefaultTPPct:      3.0,
		DefaultSLPct:      1.5,
	},
	market.Timeframe4h: {
		Timeframe:         market.Timeframe4h,
		MinScore:          2,
		MinWinProbability: 0.60,
		MinConfluence:     2,
		RSILongMax:        75,
		RSIShortMin:       20,
		ADXMin:            10,
		MinRRR:            1.0,
		AnalysisInterval:  5 * time.Minute,
		DefaultTPPct:      4.0,
		DefaultSLPct:      2.0,
	},
	market.Timeframe1d: {
		Timeframe:         market.Timeframe1d,
		MinScore:          2,
		MinWinProbability: 0.58,
		MinConfluence:     2,
		RSILongMax:        75,
		RSIShortMin:       20,
		ADXMin:            10,
		MinRRR:            1.0,
		AnalysisInterval:  10 * time.Minute,
		DefaultTPPct:      6.0,
		DefaultSLPct:      3.0,
	},
}

// PresetFor returns the preset for the given timeframe. A missing
// preset is a configuration error and should abort startup.
func PresetFor(tf market.Timeframe) (TimeframePreset, error) {
	p, ok := timeframePresets[tf]
	if !ok {
		return TimeframePreset{}, NewConfigError("engine.timeframes", fmt.Sprintf("no preset defined for timeframe '%s'", tf))
	}
	return p, nil
}

// AllPresets returns a copy of the preset table, sorted by timeframe
// duration.
func AllPresets() []TimeframePreset {
	out := make([]TimeframePreset, 0, len(timeframePresets))
	for _, tf := range market.AllTimeframes() {
		if p, ok := timeframePresets[tf]; ok {
			out = append(out, p)
		}
	}
	return out
}

// EffectiveInterval resolves the cycle interval for a timeframe,
// preferring the engine override when set.
func (e *EngineConfig) EffectiveInterval(tf market.Timeframe) (time.Duration, error) {
	if e.AnalysisInterval > 0 {
		return e.AnalysisInterval, nil
	}
	p, err := PresetFor(tf)
	if err != nil {
		return 0, err
	}
	return p.AnalysisInterval, nil
}

// EffectiveMinRRR resolves the minimum reward-to-risk ratio,
// preferring the engine override when set.
func (e *EngineConfig) EffectiveMinRRR(p TimeframePreset) float64 {
	if e.MinRRR > 0 {
		return e.MinRRR
	}
	return p.MinRRR
}
