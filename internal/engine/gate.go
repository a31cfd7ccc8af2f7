package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/kumotrade/internal/alerts"
	"github.com/ajitpratap0/kumotrade/internal/config"
	"github.com/ajitpratap0/kumotrade/internal/events"
	"github.com/ajitpratap0/kumotrade/internal/exchange"
	"github.com/ajitpratap0/kumotrade/internal/journal"
	"github.com/ajitpratap0/kumotrade/internal/market"
	"github.com/ajitpratap0/kumotrade/internal/metrics"
	"github.com/ajitpratap0/kumotrade/internal/risk"
)

// Gate stages, used as rejection labels in logs, metrics and the
// journal.
const (
	StageHalted         = "halted"
	StagePaused         = "paused"
	StageMaxTrades      = "max_trades"
	StageExchange       = "exchange"
	StagePosition       = "position"
	StageLocked         = "locked"
	StageCooldown       = "cooldown"
	StageGlobalCooldown = "global_cooldown"
	StageDirectionCap   = "direction_cap"
	StageAbsorbed       = "absorbed"
	StageCorrelation    = "correlation"
	StageRSI            = "rsi"
	StageBalance        = "balance"
	StageRisk           = "risk"
	StageRRR            = "rrr"
	StageSize           = "size"
)

// minTradableEquity is the floor below which no order is attempted.
const minTradableEquity = 1.0

// Rejection is a gate verdict for one candidate. Not an error: the
// candidate was understood and turned away for the stated reason.
type Rejection struct {
	Symbol string
	Stage  string
	Reason string
}

// Execution is an acknowledged entry.
type Execution struct {
	Symbol    string
	Direction market.Direction
	Size      float64
	Ack       *exchange.OrderAck
	Levels    *risk.SLTPResult
}

// GateOutcome summarises one pass over the opportunity list. Skipped
// names the stage that ended the cycle before candidates were
// evaluated; otherwise Rejections holds the per-candidate verdicts and
// Executed the single entry that survived, if any.
type GateOutcome struct {
	Skipped    string
	SkipReason string
	Rejections []Rejection
	Executed   *Execution
	Err        error
}

// equityUpdater is satisfied by correlation managers that track live
// equity for their drawdown policy.
type equityUpdater interface {
	UpdateEquity(equity float64, now time.Time)
}

// TradeGate admits at most one opportunity per cycle through the
// ordered checks: pause, reconciliation and concurrency cap, open
// position and decision lock, per-symbol and global cooldowns, the
// consecutive-direction cap, a venue double-read, the correlation
// policy, the RSI band, the equity floor, and finally the risk
// calculation. Counters move only after the venue acknowledges.
type TradeGate struct {
	client      exchange.Client
	risk        *risk.Calculator
	correlation risk.CorrelationManager
	positions   *PositionManager
	state       *tradeState
	hub         *events.Hub
	journal     *journal.Journal
	alerts      *alerts.Manager
	metrics     *metrics.EngineMetrics
	logger      zerolog.Logger
	now         func() time.Time

	halted     atomic.Bool
	haltMu     sync.Mutex
	haltReason string
}

// NewTradeGate wires the gate. hub must be non-nil; jnl and alertMgr
// may be nil.
func NewTradeGate(client exchange.Client, calc *risk.Calculator, correlation risk.CorrelationManager, positions *PositionManager, state *tradeState, hub *events.Hub, jnl *journal.Journal, alertMgr *alerts.Manager) *TradeGate {
	return &TradeGate{
		client:      client,
		risk:        calc,
		correlation: correlation,
		positions:   positions,
		state:       state,
		hub:         hub,
		journal:     jnl,
		alerts:      alertMgr,
		metrics:     metrics.Engine(),
		logger:      log.With().Str("component", "gate").Logger(),
		now:         time.Now,
	}
}

// Halt refuses all new trades until Resume. Analysis and position
// tracking keep running.
func (g *TradeGate) Halt(symbol, detail string) {
	g.haltMu.Lock()
	g.haltReason = fmt.Sprintf("%s: %s", symbol, detail)
	g.haltMu.Unlock()
	g.halted.Store(true)
	g.logger.Error().
		Str("symbol", symbol).
		Str("detail", detail).
		Msg("Trading halted pending inspection")
	g.hub.EmitLog("error", fmt.Sprintf("Trading halted pending inspection: %s: %s", symbol, detail))
}

// Halted reports whether the gate refuses new trades, and why.
func (g *TradeGate) Halted() (bool, string) {
	if !g.halted.Load() {
		return false, ""
	}
	g.haltMu.Lock()
	defer g.haltMu.Unlock()
	return true, g.haltReason
}

// Resume clears a halt after human inspection.
func (g *TradeGate) Resume() {
	g.halted.Store(false)
	g.haltMu.Lock()
	g.haltReason = ""
	g.haltMu.Unlock()
	g.logger.Info().Msg("Trading resumed after inspection")
}

// Evaluate walks the ordered opportunity list and executes the first
// candidate that clears every check. Candidates that fail a check are
// rejected with the exact reason; an execution failure ends the cycle
// without touching the overtrading counters.
func (g *TradeGate) Evaluate(ctx context.Context, cfg config.EngineConfig, opps []*Opportunity) *GateOutcome {
	now := g.now()
	out := &GateOutcome{}

	if halted, reason := g.Halted(); halted {
		out.Skipped = StageHalted
		out.SkipReason = fmt.Sprintf("Trading halted: %s", reason)
		g.skipCycle(out)
		return out
	}

	if until := g.state.PausedUntil(); until.After(now) {
		out.Skipped = StagePaused
		out.SkipReason = fmt.Sprintf("Trading paused until %s after %d consecutive losses",
			until.Format("15:04:05"), g.state.Losses())
		g.skipCycle(out)
		return out
	}

	real, err := g.positions.Sync(ctx)
	if err != nil {
		out.Skipped = StageExchange
		out.SkipReason = "Position reconciliation failed, retrying next cycle"
		out.Err = err
		g.logger.Warn().Err(err).Msg(out.SkipReason)
		return out
	}
	active := g.positions.TrackedCount()
	if cfg.MaxConcurrentTrades > 0 && active >= cfg.MaxConcurrentTrades {
		out.Skipped = StageMaxTrades
		out.SkipReason = fmt.Sprintf("Max trades reached: %d/%d positions open", active, cfg.MaxConcurrentTrades)
		g.skipCycle(out)
		return out
	}

	bal, err := g.client.GetAccountBalance(ctx)
	if err != nil {
		g.metrics.ExchangeErrors.WithLabelValues(metrics.NormalizeExchangeError(err)).Inc()
		out.Skipped = StageExchange
		out.SkipReason = "Balance unavailable, retrying next cycle"
		out.Err = err
		g.logger.Warn().Err(err).Msg(out.SkipReason)
		return out
	}
	equity := bal.TotalEquity
	g.metrics.EquityUSD.Set(equity)
	if u, ok := g.correlation.(equityUpdater); ok {
		u.UpdateEquity(equity, now)
	}

	realBySymbol := make(map[string]exchange.Position, len(real))
	for _, pos := range real {
		realBySymbol[pos.Symbol] = pos
	}

	for _, opp := range opps {
		exec, rej, err := g.evaluateCandidate(ctx, cfg, opp, realBySymbol, real, equity, now)
		if rej != nil {
			out.Rejections = append(out.Rejections, *rej)
			g.recordRejection(ctx, opp, *rej)
			continue
		}
		if err != nil {
			out.Err = err
			break
		}
		out.Executed = exec
		break
	}
	return out
}

func (g *TradeGate) skipCycle(out *GateOutcome) {
	g.logger.Info().Str("stage", out.Skipped).Msg(out.SkipReason)
	g.metrics.GateRejections.WithLabelValues(out.Skipped).Inc()
	g.hub.EmitLog("info", out.SkipReason)
}

func (g *TradeGate) recordRejection(ctx context.Context, opp *Opportunity, rej Rejection) {
	g.logger.Info().
		Str("symbol", rej.Symbol).
		Str("stage", rej.Stage).
		Msg(rej.Reason)
	g.metrics.GateRejections.WithLabelValues(rej.Stage).Inc()
	g.hub.EmitLog("info", fmt.Sprintf("%s: %s", rej.Symbol, rej.Reason))
	if err := g.journal.RecordRejection(ctx, &journal.RejectionRecord{
		Symbol:    rej.Symbol,
		Timeframe: opp.Timeframe.String(),
		Stage:     rej.Stage,
		Reason:    rej.Reason,
	}); err != nil {
		g.logger.Warn().Err(err).Str("symbol", rej.Symbol).Msg("Rejection not journalled")
	}
}

// evaluateCandidate runs the per-candidate checks and, when all pass,
// places the order. Exactly one of the three returns is set. The
// decision lock is released on every path out.
func (g *TradeGate) evaluateCandidate(ctx context.Context, cfg config.EngineConfig, opp *Opportunity, real map[string]exchange.Position, realList []exchange.Position, equity float64, now time.Time) (*Execution, *Rejection, error) {
	symbol := opp.Symbol
	dir := opp.Signal.Direction

	if _, held := real[symbol]; held {
		return nil, &Rejection{symbol, StagePosition, fmt.Sprintf("Position already open on %s", symbol)}, nil
	}

	if !g.state.TryLock(symbol) {
		return nil, &Rejection{symbol, StageLocked, fmt.Sprintf("Decision already in flight for %s", symbol)}, nil
	}
	defer g.state.Unlock(symbol)

	if left := g.state.SymbolCooldownLeft(symbol, cfg.SymbolCooldown, now); left > 0 {
		return nil, &Rejection{symbol, StageCooldown,
			fmt.Sprintf("Cooldown: %s left on %s", left.Round(time.Second), symbol)}, nil
	}
	if left := g.state.GlobalCooldownLeft(cfg.GlobalCooldown, now); left > 0 {
		return nil, &Rejection{symbol, StageGlobalCooldown,
			fmt.Sprintf("Global cooldown: %s until next entry", left.Round(time.Second))}, nil
	}

	if limit := cfg.MaxConsecutiveSameDirection; limit > 0 {
		if run := g.state.ConsecutiveInDirection(dir); run >= limit {
			return nil, &Rejection{symbol, StageDirectionCap,
				fmt.Sprintf("%d consecutive %s entries at cap %d", run, dir, limit)}, nil
		}
	}

	// Second venue read to defeat the race between reconciliation and
	// this decision. A position that appeared meanwhile is adopted.
	raws, err := g.client.GetPositions(ctx)
	if err != nil {
		g.metrics.ExchangeErrors.WithLabelValues(metrics.NormalizeExchangeError(err)).Inc()
		return nil, &Rejection{symbol, StageExchange,
			fmt.Sprintf("Venue position read failed, skipping %s this cycle", symbol)}, nil
	}
	for i := range raws {
		pos, err := raws[i].Normalize()
		if err != nil || pos.Size <= 0 || pos.Symbol != symbol {
			continue
		}
		g.positions.Track(&Position{
			Symbol:     pos.Symbol,
			Direction:  pos.Direction,
			EntryPrice: pos.EntryPrice,
			Size:       pos.Size,
			Leverage:   pos.Leverage,
			OpenedAt:   now,
			FromSync:   true,
		})
		return nil, &Rejection{symbol, StageAbsorbed,
			fmt.Sprintf("Position appeared on venue mid-cycle for %s, adopted", symbol)}, nil
	}

	if d := g.correlation.CanTrade(symbol, realList); !d.Allowed {
		return nil, &Rejection{symbol, StageCorrelation,
			"Correlation: " + strings.Join(d.Reasons, "; ")}, nil
	}

	if cfg.UseRSIFilter && opp.Bundle != nil && opp.Bundle.RSI != nil {
		rsi := opp.Bundle.RSI.Value
		if dir == market.DirectionLong && cfg.RSIOverbought > 0 && rsi >= cfg.RSIOverbought {
			return nil, &Rejection{symbol, StageRSI,
				fmt.Sprintf("RSI %.1f at or above overbought %.0f", rsi, cfg.RSIOverbought)}, nil
		}
		if dir == market.DirectionShort && rsi <= cfg.RSIOversold {
			return nil, &Rejection{symbol, StageRSI,
				fmt.Sprintf("RSI %.1f at or below oversold %.0f", rsi, cfg.RSIOversold)}, nil
		}
	}

	if equity < minTradableEquity {
		return nil, &Rejection{symbol, StageBalance,
			fmt.Sprintf("Equity $%.2f below the $%.0f floor", equity, minTradableEquity)}, nil
	}

	res, err := g.risk.CalculateSLTP(opp.Price, dir, g.sltpContext(cfg, opp))
	if err != nil {
		return nil, &Rejection{symbol, StageRisk,
			fmt.Sprintf("Risk levels unavailable: %v", err)}, nil
	}
	if !res.MeetsMinRRR {
		return nil, &Rejection{symbol, StageRRR,
			fmt.Sprintf("RRR insuffisant: %.2f below the %.2f minimum", res.RRR, cfg.EffectiveMinRRR(opp.Preset))}, nil
	}
	size := g.risk.CalculatePositionSize(equity, opp.Price, res.StopLoss, cfg.Leverage, cfg.RiskPerTradePct)
	if size <= 0 {
		return nil, &Rejection{symbol, StageSize,
			fmt.Sprintf("Position size computed to zero for %s", symbol)}, nil
	}
	if err := g.risk.ValidateTrade(dir, opp.Price, size, res); err != nil {
		return nil, &Rejection{symbol, StageRisk,
			fmt.Sprintf("Trade validation failed: %v", err)}, nil
	}

	return g.execute(ctx, cfg, opp, res, size, now)
}

func (g *TradeGate) sltpContext(cfg config.EngineConfig, opp *Opportunity) risk.SLTPContext {
	sctx := risk.SLTPContext{
		Mode:         cfg.TPSLMode,
		TechnicalSL:  opp.Signal.SuggestedSL,
		TechnicalTP:  opp.Signal.SuggestedTP,
		ATRMultSL:    cfg.ATRMultSL,
		ATRMultTP:    cfg.ATRMultTP,
		DefaultSLPct: opp.Preset.DefaultSLPct,
		DefaultTPPct: opp.Preset.DefaultTPPct,
		CustomSLPct:  cfg.CustomSLPct,
		CustomTPPct:  cfg.CustomTPPct,
		MinRRR:       cfg.EffectiveMinRRR(opp.Preset),
	}
	if opp.Bundle != nil && opp.Bundle.ATR != nil {
		sctx.ATRValue = opp.Bundle.ATR.Value
	}
	return sctx
}

func (g *TradeGate) execute(ctx context.Context, cfg config.EngineConfig, opp *Opportunity, res *risk.SLTPResult, size float64, now time.Time) (*Execution, *Rejection, error) {
	symbol := opp.Symbol
	dir := opp.Signal.Direction

	req := exchange.OrderRequest{
		Symbol:        symbol,
		Direction:     dir,
		Size:          size,
		Leverage:      cfg.Leverage,
		StopLoss:      res.StopLoss,
		TakeProfit:    res.TakeProfit,
		ClientOrderID: uuid.New().String(),
	}
	ack, err := g.client.PlaceOrderWithTPSL(ctx, req)
	if err != nil {
		g.metrics.ExchangeErrors.WithLabelValues(metrics.NormalizeExchangeError(err)).Inc()
		g.logger.Error().Err(err).
			Str("symbol", symbol).
			Str("direction", dir.String()).
			Float64("size", size).
			Msg("Order rejected by venue")
		g.hub.EmitLog("error", fmt.Sprintf("Order for %s rejected by venue: %v", symbol, err))
		if aerr := g.alerts.ExecutionError(ctx, symbol, err); aerr != nil {
			g.logger.Warn().Err(aerr).Msg("Execution alert not delivered")
		}
		return nil, nil, &ExecutionError{Symbol: symbol, Err: err}
	}

	if !ack.StopLossSet {
		return nil, nil, g.handleUnprotected(ctx, symbol, ack)
	}

	g.state.RecordTrade(symbol, dir, now)

	entry := ack.AvgPrice
	if entry <= 0 {
		entry = opp.Price
	}
	filled := ack.FilledSize
	if filled <= 0 {
		filled = size
	}
	pos := &Position{
		Symbol:     symbol,
		Direction:  dir,
		EntryPrice: entry,
		Size:       filled,
		StopLoss:   res.StopLoss,
		TakeProfit: res.TakeProfit,
		Leverage:   cfg.Leverage,
		OpenedAt:   now,
		OrderID:    ack.OrderID,
		Snapshot: &AnalysisSnapshot{
			Strategy:       opp.Signal.Strategy,
			Timeframe:      opp.Timeframe,
			Score:          opp.Signal.Score,
			Confluence:     opp.Signal.Confluence,
			Grade:          opp.Signal.Grade,
			QualityScore:   opp.Signal.QualityScore,
			WinProbability: opp.Signal.WinProbability,
		},
	}
	g.positions.Track(pos)

	g.logger.Info().
		Str("symbol", symbol).
		Str("direction", dir.String()).
		Str("grade", string(opp.Signal.Grade)).
		Float64("entry_price", entry).
		Float64("size", filled).
		Float64("stop_loss", res.StopLoss).
		Float64("take_profit", res.TakeProfit).
		Float64("rrr", res.RRR).
		Str("order_id", ack.OrderID).
		Msg("Order placed")

	g.metrics.TradesTotal.WithLabelValues(dir.String()).Inc()
	g.hub.EmitTrade(symbol, events.TradePayload{
		OrderID:        ack.OrderID,
		Direction:      dir.String(),
		EntryPrice:     entry,
		Size:           filled,
		StopLoss:       res.StopLoss,
		TakeProfit:     res.TakeProfit,
		Leverage:       cfg.Leverage,
		Grade:          string(opp.Signal.Grade),
		WinProbability: opp.Signal.WinProbability,
	})
	g.hub.EmitPosition(symbol, events.PositionPayload{
		Change:     "opened",
		Direction:  dir.String(),
		EntryPrice: entry,
		Size:       filled,
	})
	if err := g.journal.RecordTrade(ctx, &journal.TradeRecord{
		Symbol:         symbol,
		Timeframe:      opp.Timeframe.String(),
		Strategy:       opp.Signal.Strategy,
		Direction:      dir.String(),
		Grade:          string(opp.Signal.Grade),
		QualityScore:   opp.Signal.QualityScore,
		WinProbability: opp.Signal.WinProbability,
		EntryPrice:     entry,
		Size:           filled,
		StopLoss:       res.StopLoss,
		TakeProfit:     res.TakeProfit,
		Leverage:       cfg.Leverage,
		OrderID:        ack.OrderID,
		OpenedAt:       now,
	}); err != nil {
		g.logger.Warn().Err(err).Str("symbol", symbol).Msg("Trade not journalled")
	}

	return &Execution{
		Symbol:    symbol,
		Direction: dir,
		Size:      filled,
		Ack:       ack,
		Levels:    res,
	}, nil, nil
}

// handleUnprotected reacts to a fill whose stop-loss leg the venue did
// not accept. The entry is closed on the spot; if even the close
// fails the gate halts.
func (g *TradeGate) handleUnprotected(ctx context.Context, symbol string, ack *exchange.OrderAck) error {
	g.logger.Error().
		Str("symbol", symbol).
		Str("order_id", ack.OrderID).
		Msg("Venue accepted entry without a stop loss, closing immediately")
	if aerr := g.alerts.FatalState(ctx, symbol, "entry filled without a stop loss"); aerr != nil {
		g.logger.Warn().Err(aerr).Msg("Fatal-state alert not delivered")
	}

	if _, err := g.client.ClosePosition(ctx, symbol); err != nil {
		g.Halt(symbol, "unprotected entry could not be closed")
		return &FatalStateError{Symbol: symbol,
			Detail: fmt.Sprintf("order %s has no stop loss and close failed: %v", ack.OrderID, err)}
	}
	return &ExecutionError{Symbol: symbol,
		Err: fmt.Errorf("venue dropped the stop-loss leg of order %s, entry closed", ack.OrderID)}
}
