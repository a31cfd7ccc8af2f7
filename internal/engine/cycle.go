package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ajitpratap0/kumotrade/internal/config"
	"github.com/ajitpratap0/kumotrade/internal/events"
	"github.com/ajitpratap0/kumotrade/internal/grader"
	"github.com/ajitpratap0/kumotrade/internal/indicators"
	"github.com/ajitpratap0/kumotrade/internal/journal"
	"github.com/ajitpratap0/kumotrade/internal/market"
	"github.com/ajitpratap0/kumotrade/internal/strategy"
)

// Quality and probability differences below these gaps read as noise;
// ranking then falls through to the next key.
const (
	qualityDecisiveGap = 5
	winProbDecisiveGap = 0.01
)

// Opportunity is one tradeable graded signal with the context the gate
// needs to act on it.
type Opportunity struct {
	Symbol    string
	Timeframe market.Timeframe
	Preset    config.TimeframePreset
	Signal    *grader.GradedSignal
	Bundle    *indicators.Bundle
	Price     float64
}

// CycleReport summarises one scheduler cycle for callers and tests.
type CycleReport struct {
	Number        uint64
	Symbols       int
	Timeframes    int
	Duration      time.Duration
	Opportunities []*Opportunity
	Outcome       *GateOutcome
}

// rankBefore orders opportunities best-first: grade, then quality
// score when the gap is decisive, then win probability when that gap
// is decisive, then confluence, then absolute score.
func rankBefore(a, b *Opportunity) bool {
	if ar, br := a.Signal.Grade.Rank(), b.Signal.Grade.Rank(); ar != br {
		return ar > br
	}
	if qa, qb := a.Signal.QualityScore, b.Signal.QualityScore; absDiff(qa, qb) >= qualityDecisiveGap {
		return qa > qb
	}
	if pa, pb := a.Signal.WinProbability, b.Signal.WinProbability; math.Abs(pa-pb) > winProbDecisiveGap {
		return pa > pb
	}
	if a.Signal.Confluence != b.Signal.Confluence {
		return a.Signal.Confluence > b.Signal.Confluence
	}
	return absInt(a.Signal.Score) > absInt(b.Signal.Score)
}

func sortOpportunities(opps []*Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool { return rankBefore(opps[i], opps[j]) })
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// RunCycle executes one analysis pass over every configured
// (symbol, timeframe) pair and hands the ranked opportunity list to
// the trade gate. A tick that lands while the previous cycle is still
// running is dropped, never queued; the dropped call returns nil.
func (e *Engine) RunCycle(ctx context.Context) *CycleReport {
	if !e.processing.CompareAndSwap(false, true) {
		e.logger.Debug().Msg("Previous cycle still running, tick dropped")
		return nil
	}
	defer e.processing.Store(false)

	n := e.cycles.Add(1)
	cfg, strat := e.snapshot()
	start := time.Now()

	var opps []*Opportunity
	for _, symbol := range cfg.Symbols {
		for _, tf := range cfg.Timeframes {
			opp, err := e.analyzePair(ctx, cfg, strat, symbol, tf)
			if err != nil {
				e.logger.Warn().Err(err).
					Str("symbol", symbol).
					Str("timeframe", tf.String()).
					Msg("Pair analysis failed, skipping this cycle")
				continue
			}
			if opp != nil {
				opps = append(opps, opp)
			}
		}
	}
	sortOpportunities(opps)

	duration := time.Since(start)
	e.metrics.CyclesTotal.Inc()
	e.metrics.CycleDuration.Observe(duration.Seconds())

	summary := fmt.Sprintf("Cycle %d — %d symbols × %d tf (%d ms) — %d opportunities",
		n, len(cfg.Symbols), len(cfg.Timeframes), duration.Milliseconds(), len(opps))
	e.logger.Info().Msg(summary)
	e.hub.EmitLog("info", summary)

	report := &CycleReport{
		Number:        n,
		Symbols:       len(cfg.Symbols),
		Timeframes:    len(cfg.Timeframes),
		Duration:      duration,
		Opportunities: opps,
	}
	if cfg.Mode == ModeAuto && len(opps) > 0 {
		report.Outcome = e.gate.Evaluate(ctx, cfg, opps)
	}
	return report
}

// analyzePair runs fetch, indicators, strategy and grading for one
// (symbol, timeframe) pair. Returns a non-nil opportunity only for a
// tradeable signal; per-pair data problems come back as errors for the
// cycle loop to log and skip.
func (e *Engine) analyzePair(ctx context.Context, cfg config.EngineConfig, strat strategy.Strategy, symbol string, tf market.Timeframe) (*Opportunity, error) {
	preset, err := config.PresetFor(tf)
	if err != nil {
		return nil, err
	}

	window := cfg.CandleWindow
	if window <= 0 {
		window = defaultCandleWindow
	}
	candles, err := e.fetcher.GetCandles(ctx, symbol, tf, window)
	if err != nil {
		return nil, err
	}
	if len(candles) < indicators.MinWindow {
		return nil, &market.DataError{
			Op:     "analyze",
			Symbol: symbol,
			Msg:    fmt.Sprintf("window of %d candles below the %d-bar minimum", len(candles), indicators.MinWindow),
		}
	}

	bundle := indicators.AnalyzeAll(candles, tf)
	sig, err := strat.Analyze(candles, tf, bundle, &cfg)
	if err != nil {
		return nil, fmt.Errorf("strategy analysis failed: %w", err)
	}

	price, perr := e.fetcher.GetPrice(ctx, symbol)
	if perr != nil || price <= 0 {
		price = bundle.Price
	}

	if sig == nil || !sig.HasDirection() {
		e.hub.EmitAnalysis(symbol, tf, events.AnalysisPayload{
			Strategy:  cfg.Strategy,
			Direction: "none",
			Price:     price,
		})
		return nil, nil
	}

	var fund *float64
	if fr, ferr := e.client.GetFundingRate(ctx, symbol); ferr == nil && fr != nil {
		fund = &fr.Rate
	}

	agree := false
	if cfg.MultiTimeframe.Enabled {
		agree = e.confirmDirection(ctx, cfg, strat, symbol, sig, window)
	}

	graded := e.grader.Grade(grader.Input{
		Signal:       sig,
		Bundle:       bundle,
		Preset:       preset,
		FundingRate:  fund,
		MTFAgreement: agree,
	})

	e.metrics.SignalsTotal.WithLabelValues(string(graded.Grade)).Inc()
	e.hub.EmitAnalysis(symbol, tf, events.AnalysisPayload{
		Strategy:       sig.Strategy,
		Direction:      sig.Direction.String(),
		Score:          sig.Score,
		Confluence:     sig.Confluence,
		Grade:          string(graded.Grade),
		QualityScore:   graded.QualityScore,
		WinProbability: graded.WinProbability,
		Tradeable:      graded.Tradeable,
		RejectReason:   graded.RejectReason,
		Price:          price,
		Reasons:        sig.Reasons,
	})
	e.journalSignal(ctx, symbol, tf, graded, price)

	if !graded.Tradeable {
		e.logger.Info().
			Str("symbol", symbol).
			Str("timeframe", tf.String()).
			Str("direction", sig.Direction.String()).
			Int("score", sig.Score).
			Str("reason", graded.RejectReason).
			Msg("Signal rejected by grading")
		return nil, nil
	}

	e.metrics.WinProbability.Observe(graded.WinProbability)
	e.hub.EmitSignal(symbol, tf, events.SignalPayload{
		Strategy:       sig.Strategy,
		Direction:      sig.Direction.String(),
		Score:          sig.Score,
		Confluence:     sig.Confluence,
		Grade:          string(graded.Grade),
		QualityScore:   graded.QualityScore,
		WinProbability: graded.WinProbability,
		SuggestedSL:    sig.SuggestedSL,
		SuggestedTP:    sig.SuggestedTP,
	})

	return &Opportunity{
		Symbol:    symbol,
		Timeframe: tf,
		Preset:    preset,
		Signal:    graded,
		Bundle:    bundle,
		Price:     price,
	}, nil
}

// confirmDirection reports whether any configured confirmation
// timeframe points the same way as the signal. Confirmation failures
// only cost the bonus, never the signal.
func (e *Engine) confirmDirection(ctx context.Context, cfg config.EngineConfig, strat strategy.Strategy, symbol string, sig *strategy.RawSignal, window int) bool {
	for _, ctf := range cfg.MultiTimeframe.ConfirmTimeframes {
		if ctf == sig.Timeframe {
			continue
		}
		candles, err := e.fetcher.GetCandles(ctx, symbol, ctf, window)
		if err != nil || len(candles) < indicators.MinWindow {
			e.logger.Debug().
				Str("symbol", symbol).
				Str("timeframe", ctf.String()).
				Msg("Confirmation window unavailable")
			continue
		}
		bundle := indicators.AnalyzeAll(candles, ctf)
		confirm, err := strat.Analyze(candles, ctf, bundle, &cfg)
		if err != nil || confirm == nil {
			continue
		}
		if confirm.Direction == sig.Direction {
			return true
		}
	}
	return false
}

func (e *Engine) journalSignal(ctx context.Context, symbol string, tf market.Timeframe, graded *grader.GradedSignal, price float64) {
	rec := &journal.SignalRecord{
		Symbol:         symbol,
		Timeframe:      tf.String(),
		Strategy:       graded.Strategy,
		Direction:      graded.Direction.String(),
		Score:          graded.Score,
		Confluence:     graded.Confluence,
		Grade:          string(graded.Grade),
		QualityScore:   graded.QualityScore,
		WinProbability: graded.WinProbability,
		Tradeable:      graded.Tradeable,
		Price:          price,
	}
	if graded.RejectReason != "" {
		reason := graded.RejectReason
		rec.RejectReason = &reason
	}
	if err := e.journal.RecordSignal(ctx, rec); err != nil {
		e.logger.Warn().Err(err).Str("symbol", symbol).Msg("Signal not journalled")
	}
}
