package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/kumotrade/internal/events"
	"github.com/ajitpratap0/kumotrade/internal/exchange"
	"github.com/ajitpratap0/kumotrade/internal/grader"
	"github.com/ajitpratap0/kumotrade/internal/journal"
	"github.com/ajitpratap0/kumotrade/internal/market"
	"github.com/ajitpratap0/kumotrade/internal/metrics"
)

// Exit reasons attached to position closes.
const (
	ExitTakeProfit = "take_profit"
	ExitStopLoss   = "stop_loss"
	ExitManual     = "manual"
	ExitUnknown    = "unknown"
)

const defaultPollInterval = 10 * time.Second

// A just-placed entry may take a beat to show up in the venue's
// position snapshot. Closes are not inferred inside this window.
const closeGrace = 15 * time.Second

// Exit-level matching tolerance as a fraction of the level.
const exitLevelTolerance = 0.002

// AnalysisSnapshot is the compact record of the signal that opened a
// position, kept for the close journal and post-trade review.
type AnalysisSnapshot struct {
	Strategy       string           `json:"strategy"`
	Timeframe      market.Timeframe `json:"timeframe"`
	Score          int              `json:"score"`
	Confluence     int              `json:"confluence"`
	Grade          grader.Grade     `json:"grade"`
	QualityScore   int              `json:"quality_score"`
	WinProbability float64          `json:"win_probability"`
}

// Position is the in-process view of one open position. The venue
// holds the authoritative external view; on conflict the venue wins.
type Position struct {
	Symbol     string           `json:"symbol"`
	Direction  market.Direction `json:"direction"`
	EntryPrice float64          `json:"entry_price"`
	Size       float64          `json:"size"`
	StopLoss   float64          `json:"stop_loss,omitempty"`
	TakeProfit float64          `json:"take_profit,omitempty"`
	Leverage   int              `json:"leverage,omitempty"`
	OpenedAt   time.Time        `json:"opened_at"`
	FromSync   bool             `json:"from_sync"`
	OrderID    string           `json:"order_id,omitempty"`

	Snapshot *AnalysisSnapshot `json:"snapshot,omitempty"`
}

// CloseFunc observes a position leaving the venue. pos is the tracked
// view at close time.
type CloseFunc func(symbol string, pnl float64, exitReason string, pos *Position)

// PositionManager owns the tracked-position map and polls the venue
// for closures. A tracked symbol missing from a successful venue
// snapshot is a close; a venue position nobody tracks is adopted with
// FromSync set. Poll errors retry on the next tick and never imply a
// close.
type PositionManager struct {
	client  exchange.Client
	fetcher *market.PriceFetcher
	hub     *events.Hub
	journal *journal.Journal
	metrics *metrics.EngineMetrics
	logger  zerolog.Logger

	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	tracked  map[string]*Position
	onClosed CloseFunc

	running atomic.Bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewPositionManager builds the manager. hub must be non-nil; jnl may
// be nil to disable journalling. interval <= 0 falls back to 10s.
func NewPositionManager(client exchange.Client, fetcher *market.PriceFetcher, hub *events.Hub, jnl *journal.Journal, interval time.Duration) *PositionManager {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &PositionManager{
		client:   client,
		fetcher:  fetcher,
		hub:      hub,
		journal:  jnl,
		metrics:  metrics.Engine(),
		logger:   log.With().Str("component", "positions").Logger(),
		interval: interval,
		now:      time.Now,
		tracked:  make(map[string]*Position),
	}
}

// SetOnClosed installs the close callback. Must be called before
// Start.
func (pm *PositionManager) SetOnClosed(cb CloseFunc) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.onClosed = cb
}

// Start launches the poll loop. The first sweep fires immediately.
func (pm *PositionManager) Start(ctx context.Context) error {
	if !pm.running.CompareAndSwap(false, true) {
		return fmt.Errorf("position manager already running")
	}
	pm.stopCh = make(chan struct{})
	pm.done = make(chan struct{})

	go pm.loop(ctx)

	pm.logger.Info().
		Dur("interval", pm.interval).
		Msg("Position manager started")
	return nil
}

// Stop halts the poll loop and waits for it to exit. Safe to call
// twice.
func (pm *PositionManager) Stop() {
	if !pm.running.CompareAndSwap(true, false) {
		return
	}
	close(pm.stopCh)
	<-pm.done
	pm.logger.Info().Msg("Position manager stopped")
}

func (pm *PositionManager) loop(ctx context.Context) {
	defer close(pm.done)

	pm.poll(ctx)

	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			pm.poll(ctx)
		case <-pm.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (pm *PositionManager) poll(ctx context.Context) {
	if _, err := pm.Sync(ctx); err != nil {
		pm.logger.Warn().Err(err).Msg("Position poll failed, retrying next tick")
	}
}

// Track inserts an open position into the tracked map, replacing any
// previous entry for the symbol.
func (pm *PositionManager) Track(pos *Position) {
	pm.mu.Lock()
	pm.tracked[pos.Symbol] = pos
	n := len(pm.tracked)
	pm.mu.Unlock()
	pm.metrics.OpenPositions.Set(float64(n))
}

// Get returns a copy of the tracked position for symbol.
func (pm *PositionManager) Get(symbol string) (Position, bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pos, ok := pm.tracked[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Tracked returns a copy of the tracked-position map.
func (pm *PositionManager) Tracked() map[string]Position {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make(map[string]Position, len(pm.tracked))
	for sym, pos := range pm.tracked {
		out[sym] = *pos
	}
	return out
}

// TrackedCount returns the number of tracked positions.
func (pm *PositionManager) TrackedCount() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.tracked)
}

// Sync reconciles the tracked map against the venue and returns the
// venue's open positions sorted by symbol. Running it twice against
// the same venue state is a no-op the second time.
func (pm *PositionManager) Sync(ctx context.Context) ([]exchange.Position, error) {
	raws, err := pm.client.GetPositions(ctx)
	if err != nil {
		pm.metrics.ExchangeErrors.WithLabelValues(metrics.NormalizeExchangeError(err)).Inc()
		return nil, fmt.Errorf("failed to fetch venue positions: %w", err)
	}

	real := make(map[string]exchange.Position, len(raws))
	for i := range raws {
		pos, err := raws[i].Normalize()
		if err != nil {
			pm.logger.Warn().Err(err).Msg("Skipping unreadable venue position")
			continue
		}
		if pos.Size <= 0 {
			continue
		}
		real[pos.Symbol] = pos
	}

	now := pm.now()

	var closed []*Position
	var adopted []*Position

	pm.mu.Lock()
	for sym, pos := range pm.tracked {
		if _, open := real[sym]; open {
			continue
		}
		if !pos.FromSync && now.Sub(pos.OpenedAt) < closeGrace {
			continue
		}
		delete(pm.tracked, sym)
		closed = append(closed, pos)
	}
	for sym, rp := range real {
		if _, ok := pm.tracked[sym]; ok {
			continue
		}
		pos := &Position{
			Symbol:     sym,
			Direction:  rp.Direction,
			EntryPrice: rp.EntryPrice,
			Size:       rp.Size,
			Leverage:   rp.Leverage,
			OpenedAt:   now,
			FromSync:   true,
		}
		pm.tracked[sym] = pos
		adopted = append(adopted, pos)
	}
	n := len(pm.tracked)
	cb := pm.onClosed
	pm.mu.Unlock()

	pm.metrics.OpenPositions.Set(float64(n))

	for _, pos := range adopted {
		pm.logger.Info().
			Str("symbol", pos.Symbol).
			Str("direction", pos.Direction.String()).
			Float64("size", pos.Size).
			Float64("entry_price", pos.EntryPrice).
			Msg("Adopted venue position")
		pm.hub.EmitPosition(pos.Symbol, events.PositionPayload{
			Change:     "synced",
			Direction:  pos.Direction.String(),
			EntryPrice: pos.EntryPrice,
			Size:       pos.Size,
			FromSync:   true,
		})
	}
	for _, pos := range closed {
		pm.handleClose(ctx, pos, cb, now)
	}

	out := make([]exchange.Position, 0, len(real))
	for _, pos := range real {
		out = append(out, pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (pm *PositionManager) handleClose(ctx context.Context, pos *Position, cb CloseFunc, now time.Time) {
	price, err := pm.fetcher.GetPrice(ctx, pos.Symbol)
	if err != nil {
		pm.logger.Warn().Err(err).
			Str("symbol", pos.Symbol).
			Msg("No exit price available for closed position")
		price = 0
	}

	pnl := 0.0
	if price > 0 && pos.EntryPrice > 0 {
		if pos.Direction == market.DirectionLong {
			pnl = (price - pos.EntryPrice) * pos.Size
		} else {
			pnl = (pos.EntryPrice - price) * pos.Size
		}
	}
	reason := exitReasonFor(pos, price)

	pm.logger.Info().
		Str("symbol", pos.Symbol).
		Str("direction", pos.Direction.String()).
		Float64("entry_price", pos.EntryPrice).
		Float64("exit_price", price).
		Float64("pnl", pnl).
		Str("exit_reason", reason).
		Bool("from_sync", pos.FromSync).
		Msg("Position closed")

	pm.hub.EmitPosition(pos.Symbol, events.PositionPayload{
		Change:     "closed",
		Direction:  pos.Direction.String(),
		EntryPrice: pos.EntryPrice,
		Size:       pos.Size,
		PnL:        pnl,
		ExitReason: reason,
		FromSync:   pos.FromSync,
	})
	if err := pm.journal.RecordClose(ctx, &journal.CloseRecord{
		Symbol:     pos.Symbol,
		Direction:  pos.Direction.String(),
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		Size:       pos.Size,
		PnL:        pnl,
		ExitReason: reason,
		FromSync:   pos.FromSync,
		ClosedAt:   now,
	}); err != nil {
		pm.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("Close not journalled")
	}

	if cb != nil {
		cb(pos.Symbol, pnl, reason, pos)
	}
}

// exitReasonFor matches the exit price against the bracket levels.
// Positions without known brackets close as manual when a price is
// available and unknown otherwise.
func exitReasonFor(pos *Position, price float64) string {
	if price <= 0 {
		return ExitUnknown
	}
	if pos.StopLoss <= 0 && pos.TakeProfit <= 0 {
		return ExitManual
	}
	long := pos.Direction == market.DirectionLong
	if pos.TakeProfit > 0 {
		if long && price >= pos.TakeProfit*(1-exitLevelTolerance) {
			return ExitTakeProfit
		}
		if !long && price <= pos.TakeProfit*(1+exitLevelTolerance) {
			return ExitTakeProfit
		}
	}
	if pos.StopLoss > 0 {
		if long && price <= pos.StopLoss*(1+exitLevelTolerance) {
			return ExitStopLoss
		}
		if !long && price >= pos.StopLoss*(1-exitLevelTolerance) {
			return ExitStopLoss
		}
	}
	return ExitManual
}
