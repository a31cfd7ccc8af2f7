// Package engine is the decision and execution core. The Engine runs
// the periodic analysis cycle over the configured symbol/timeframe
// grid, the TradeGate admits at most one opportunity per cycle through
// the ordered policy checks, and the PositionManager reconciles open
// positions against the venue, which is always the source of truth.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/kumotrade/internal/alerts"
	"github.com/ajitpratap0/kumotrade/internal/auth"
	"github.com/ajitpratap0/kumotrade/internal/config"
	"github.com/ajitpratap0/kumotrade/internal/events"
	"github.com/ajitpratap0/kumotrade/internal/exchange"
	"github.com/ajitpratap0/kumotrade/internal/grader"
	"github.com/ajitpratap0/kumotrade/internal/journal"
	"github.com/ajitpratap0/kumotrade/internal/market"
	"github.com/ajitpratap0/kumotrade/internal/metrics"
	"github.com/ajitpratap0/kumotrade/internal/risk"
	"github.com/ajitpratap0/kumotrade/internal/strategy"
)

// Trading modes. Manual mode analyzes and grades but never hands
// opportunities to the gate.
const (
	ModeAuto   = "auto"
	ModeManual = "manual"
)

const defaultCandleWindow = 250

// daySeeder is satisfied by correlation managers that anchor a daily
// drawdown policy on the equity seen at start.
type daySeeder interface {
	SeedDayStart(equity float64, now time.Time)
}

// Options carries the engine's collaborators. Exchange and Auth are
// required; everything else defaults to the production wiring when
// nil.
type Options struct {
	Exchange    exchange.Client
	Auth        auth.Provider
	Fetcher     *market.PriceFetcher
	Strategy    strategy.Strategy
	Grader      *grader.Grader
	Risk        *risk.Calculator
	Correlation risk.CorrelationManager
	Hub         *events.Hub
	Journal     *journal.Journal
	Alerts      *alerts.Manager

	// PositionPollInterval overrides the 10s position sweep, mainly
	// for tests.
	PositionPollInterval time.Duration
}

// Engine owns the cycle scheduler and wires the analysis pipeline to
// the trade gate and the position manager.
type Engine struct {
	client      exchange.Client
	auth        auth.Provider
	fetcher     *market.PriceFetcher
	grader      *grader.Grader
	risk        *risk.Calculator
	correlation risk.CorrelationManager
	gate        *TradeGate
	positions   *PositionManager
	state       *tradeState
	hub         *events.Hub
	journal     *journal.Journal
	alerts      *alerts.Manager
	metrics     *metrics.EngineMetrics
	logger      zerolog.Logger
	now         func() time.Time

	cfgMu sync.RWMutex
	cfg   config.EngineConfig
	strat strategy.Strategy

	interval   time.Duration
	cycles     atomic.Uint64
	processing atomic.Bool
	running    atomic.Bool
	stopCh     chan struct{}
	done       chan struct{}
}

// Status is a point-in-time view of the engine for dashboards and
// logs.
type Status struct {
	Running           bool
	Processing        bool
	Cycle             uint64
	Interval          time.Duration
	OpenPositions     int
	ConsecutiveLosses int
	PausedUntil       time.Time
	Halted            bool
	HaltReason        string
}

// New validates the configuration and assembles the engine. Config
// problems (unknown strategy, missing preset, invalid bounds) are
// fatal here, before anything touches the venue.
func New(cfg config.EngineConfig, opts Options) (*Engine, error) {
	if opts.Exchange == nil {
		return nil, fmt.Errorf("exchange client is required")
	}
	if opts.Auth == nil {
		return nil, fmt.Errorf("auth provider is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, tf := range cfg.Timeframes {
		if _, err := config.PresetFor(tf); err != nil {
			return nil, err
		}
	}

	strat := opts.Strategy
	if strat == nil {
		s, err := strategy.New(cfg.Strategy)
		if err != nil {
			return nil, err
		}
		strat = s
	}
	interval, err := cfg.EffectiveInterval(cfg.Timeframes[0])
	if err != nil {
		return nil, err
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = market.NewPriceFetcher(opts.Exchange, market.DefaultFetcherConfig())
	}
	grd := opts.Grader
	if grd == nil {
		grd = grader.NewGrader()
	}
	calc := opts.Risk
	if calc == nil {
		calc = risk.NewCalculator()
	}
	correlation := opts.Correlation
	if correlation == nil {
		correlation = risk.NewClusterManager(risk.DefaultClusterLimits())
	}
	hub := opts.Hub
	if hub == nil {
		hub = events.NewHub()
	}

	state := newTradeState()
	positions := NewPositionManager(opts.Exchange, fetcher, hub, opts.Journal, opts.PositionPollInterval)
	gate := NewTradeGate(opts.Exchange, calc, correlation, positions, state, hub, opts.Journal, opts.Alerts)

	e := &Engine{
		client:      opts.Exchange,
		auth:        opts.Auth,
		fetcher:     fetcher,
		grader:      grd,
		risk:        calc,
		correlation: correlation,
		gate:        gate,
		positions:   positions,
		state:       state,
		hub:         hub,
		journal:     opts.Journal,
		alerts:      opts.Alerts,
		metrics:     metrics.Engine(),
		logger:      log.With().Str("component", "engine").Logger(),
		now:         time.Now,
		cfg:         copyConfig(cfg),
		strat:       strat,
		interval:    interval,
	}
	positions.SetOnClosed(e.onPositionClosed)
	return e, nil
}

// Start validates credentials, seeds the day-start equity, reconciles
// positions against the venue and launches the cycle ticker. The
// first cycle fires immediately.
func (e *Engine) Start(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("engine already running")
	}
	ok := false
	defer func() {
		if !ok {
			e.running.Store(false)
		}
	}()

	if !e.auth.IsReady(ctx) {
		return auth.NewAuthError("credentials not ready", nil)
	}
	if err := e.auth.TestConnection(ctx); err != nil {
		if auth.IsAuthError(err) {
			return err
		}
		return auth.NewAuthError("connection test failed", err)
	}

	bal, err := e.client.GetAccountBalance(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch initial balance: %w", err)
	}
	e.metrics.EquityUSD.Set(bal.TotalEquity)
	if s, okSeed := e.correlation.(daySeeder); okSeed {
		s.SeedDayStart(bal.TotalEquity, e.now())
	}

	if _, err := e.positions.Sync(ctx); err != nil {
		return fmt.Errorf("failed to reconcile positions: %w", err)
	}

	cfg, _ := e.snapshot()
	e.logger.Info().
		Str("address", e.auth.Address()).
		Float64("equity", bal.TotalEquity).
		Int("open_positions", e.positions.TrackedCount()).
		Interface("config", cfg).
		Msg("Engine configuration")

	if err := e.positions.Start(ctx); err != nil {
		return err
	}

	e.stopCh = make(chan struct{})
	e.done = make(chan struct{})
	go e.loop(ctx)

	e.logger.Info().
		Strs("symbols", cfg.Symbols).
		Str("strategy", cfg.Strategy).
		Str("mode", cfg.Mode).
		Dur("interval", e.interval).
		Msg("Engine started")
	e.hub.EmitLog("info", fmt.Sprintf("Engine started: %d symbols, %s strategy, %s interval",
		len(cfg.Symbols), cfg.Strategy, e.interval))

	ok = true
	return nil
}

// Stop cancels the cycle ticker and the position poll, then waits for
// the in-flight cycle to drain. Safe to call twice.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	close(e.stopCh)
	<-e.done
	e.positions.Stop()
	e.logger.Info().Msg("Engine stopped")
	e.hub.EmitLog("info", "Engine stopped")
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)

	e.RunCycle(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.RunCycle(ctx)
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// onPositionClosed updates the loss streak and arms the cooling-off
// pause. Runs on the position manager's poll goroutine.
func (e *Engine) onPositionClosed(symbol string, pnl float64, exitReason string, pos *Position) {
	cfg, _ := e.snapshot()

	switch {
	case pnl > 0:
		e.state.RecordWin()
		e.metrics.ConsecutiveLosses.Set(0)
		e.logger.Info().
			Str("symbol", symbol).
			Float64("pnl", pnl).
			Str("exit_reason", exitReason).
			Msg("Winning close, loss streak reset")

	case pnl < 0:
		losses, pausedUntil := e.state.RecordLoss(e.now(), cfg.MaxConsecutiveLosses, cfg.PauseAfterLosses)
		e.metrics.ConsecutiveLosses.Set(float64(losses))
		e.logger.Warn().
			Str("symbol", symbol).
			Float64("pnl", pnl).
			Str("exit_reason", exitReason).
			Int("consecutive_losses", losses).
			Msg("Losing close")
		if !pausedUntil.IsZero() {
			e.logger.Warn().
				Int("consecutive_losses", losses).
				Time("paused_until", pausedUntil).
				Msg("Loss streak reached the cap, pausing new entries")
			e.hub.EmitLog("warn", fmt.Sprintf("Trading paused until %s after %d consecutive losses",
				pausedUntil.Format("15:04:05"), losses))
			if err := e.alerts.LossPause(context.Background(), losses, pausedUntil); err != nil {
				e.logger.Warn().Err(err).Msg("Loss-pause alert not delivered")
			}
		}

	default:
		e.logger.Info().
			Str("symbol", symbol).
			Str("exit_reason", exitReason).
			Msg("Flat close")
	}
}

// snapshot returns the configuration and strategy for one cycle.
// Mid-cycle updates only apply from the next cycle on.
func (e *Engine) snapshot() (config.EngineConfig, strategy.Strategy) {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg, e.strat
}

// Config returns a copy of the active engine configuration.
func (e *Engine) Config() config.EngineConfig {
	cfg, _ := e.snapshot()
	return copyConfig(cfg)
}

// UpdateConfig validates and swaps the engine configuration. The new
// settings apply from the next cycle; a changed analysis interval
// takes effect on the next Start.
func (e *Engine) UpdateConfig(cfg config.EngineConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, tf := range cfg.Timeframes {
		if _, err := config.PresetFor(tf); err != nil {
			return err
		}
	}

	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	if cfg.Strategy != e.cfg.Strategy {
		s, err := strategy.New(cfg.Strategy)
		if err != nil {
			return err
		}
		e.strat = s
	}
	e.cfg = copyConfig(cfg)

	e.logger.Info().
		Str("strategy", cfg.Strategy).
		Str("mode", cfg.Mode).
		Strs("symbols", cfg.Symbols).
		Msg("Engine configuration updated")
	return nil
}

// Gate exposes the trade gate for halt inspection and manual resume.
func (e *Engine) Gate() *TradeGate {
	return e.gate
}

// Positions exposes the position manager.
func (e *Engine) Positions() *PositionManager {
	return e.positions
}

// Status reports the current engine state.
func (e *Engine) Status() Status {
	halted, reason := e.gate.Halted()
	snap := e.state.Snapshot()
	return Status{
		Running:           e.running.Load(),
		Processing:        e.processing.Load(),
		Cycle:             e.cycles.Load(),
		Interval:          e.interval,
		OpenPositions:     e.positions.TrackedCount(),
		ConsecutiveLosses: snap.ConsecutiveLosses,
		PausedUntil:       snap.PausedUntil,
		Halted:            halted,
		HaltReason:        reason,
	}
}

// copyConfig deep-copies the slice-valued fields so a snapshot taken
// by a running cycle cannot observe later mutations.
func copyConfig(cfg config.EngineConfig) config.EngineConfig {
	out := cfg
	out.Symbols = append([]string(nil), cfg.Symbols...)
	out.Timeframes = append([]market.Timeframe(nil), cfg.Timeframes...)
	out.EnabledSignals = append([]string(nil), cfg.EnabledSignals...)
	out.MultiTimeframe.ConfirmTimeframes = append([]market.Timeframe(nil), cfg.MultiTimeframe.ConfirmTimeframes...)
	return out
}
