package exchange

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/kumotrade/internal/market"
)

// PaperConfig tunes the paper-trading simulator. Percentages are in
// percent units (0.05 means 0.05%).
type PaperConfig struct {
	StartingEquity   float64
	SlippagePct      float64
	MaxSlippagePct   float64
	ImpactPerMillion float64
	TakerFeePct      float64
}

// DefaultPaperConfig returns Binance-like paper trading parameters.
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{
		StartingEquity:   10000,
		SlippagePct:      0.05,
		MaxSlippagePct:   0.3,
		ImpactPerMillion: 0.01,
		TakerFeePct:      0.05,
	}
}

type paperPosition struct {
	id         string
	symbol     string
	direction  market.Direction
	size       float64
	entryPrice float64
	stopLoss   float64
	takeProfit float64
	leverage   int
	openedAt   time.Time
}

// PaperExchange simulates fills, fees and bracket exits over real
// market data. Market-data calls delegate to the wrapped client;
// account and order calls run against simulated state. Bracket orders
// trigger during the position sweep in GetPositions, so the position
// poll drives exits exactly like a venue would.
type PaperExchange struct {
	data   Client
	cfg    PaperConfig
	logger zerolog.Logger

	mu        sync.Mutex
	cash      float64
	positions map[string]*paperPosition
	closed    int
	wins      int
}

// NewPaperExchange creates a simulator over the given market-data
// client.
func NewPaperExchange(data Client, cfg PaperConfig) *PaperExchange {
	if cfg.StartingEquity <= 0 {
		cfg = DefaultPaperConfig()
	}

	log.Info().
		Float64("equity", cfg.StartingEquity).
		Float64("slippage_pct", cfg.SlippagePct).
		Float64("taker_fee_pct", cfg.TakerFeePct).
		Msg("Paper exchange initialized")

	return &PaperExchange{
		data:      data,
		cfg:       cfg,
		logger:    log.With().Str("component", "paper_exchange").Logger(),
		cash:      cfg.StartingEquity,
		positions: make(map[string]*paperPosition),
	}
}

// Market data passes straight through to the wrapped client.

func (p *PaperExchange) GetCandles(ctx context.Context, symbol string, tf market.Timeframe, startMs, endMs int64) ([]market.Candle, error) {
	return p.data.GetCandles(ctx, symbol, tf, startMs, endMs)
}

func (p *PaperExchange) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return p.data.GetPrice(ctx, symbol)
}

func (p *PaperExchange) GetAllMids(ctx context.Context) (map[string]float64, error) {
	return p.data.GetAllMids(ctx)
}

func (p *PaperExchange) GetFundingRate(ctx context.Context, symbol string) (*FundingRate, error) {
	return p.data.GetFundingRate(ctx, symbol)
}

// GetAccountBalance reports simulated cash plus unrealized PnL.
func (p *PaperExchange) GetAccountBalance(ctx context.Context) (*Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var unrealized, margin float64
	for _, pos := range p.positions {
		price, err := p.data.GetPrice(ctx, pos.symbol)
		if err != nil {
			price = pos.entryPrice
		}
		unrealized += p.unrealizedPnL(pos, price)
		margin += p.marginFor(pos)
	}

	return &Balance{
		TotalEquity:      p.cash + unrealized,
		AvailableBalance: p.cash - margin,
		MarginUsed:       margin,
	}, nil
}

// GetPositions sweeps bracket triggers against current prices, then
// returns the surviving positions. Payloads use the coin/szi/entryPx
// spelling.
func (p *PaperExchange) GetPositions(ctx context.Context) ([]RawPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]RawPosition, 0, len(p.positions))
	for symbol, pos := range p.positions {
		price, err := p.data.GetPrice(ctx, pos.symbol)
		if err != nil {
			// No price, no sweep; report the position as-is.
			out = append(out, p.rawFor(pos, pos.entryPrice))
			continue
		}

		if exit, hit := bracketExit(pos, price); hit {
			p.closeLocked(pos, exit)
			delete(p.positions, symbol)
			continue
		}
		out = append(out, p.rawFor(pos, price))
	}
	return out, nil
}

// PlaceOrderWithTPSL fills a market entry with slippage and fees and
// registers the bracket.
func (p *PaperExchange) PlaceOrderWithTPSL(ctx context.Context, req OrderRequest) (*OrderAck, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	price, err := p.data.GetPrice(ctx, req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("paper entry %s: no market price: %w", req.Symbol, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.positions[req.Symbol]; exists {
		return nil, fmt.Errorf("paper entry %s: position already open", req.Symbol)
	}

	fillPrice := p.applySlippage(price, req.Size, req.Direction == market.DirectionLong)
	notional := fillPrice * req.Size
	fee := notional * p.cfg.TakerFeePct / 100

	leverage := req.Leverage
	if leverage < 1 {
		leverage = 1
	}
	margin := notional / float64(leverage)
	if margin+fee > p.cash {
		return nil, fmt.Errorf("paper entry %s: insufficient balance (need %.2f, have %.2f)", req.Symbol, margin+fee, p.cash)
	}

	p.cash -= fee

	pos := &paperPosition{
		id:         uuid.New().String(),
		symbol:     req.Symbol,
		direction:  req.Direction,
		size:       req.Size,
		entryPrice: fillPrice,
		stopLoss:   req.StopLoss,
		takeProfit: req.TakeProfit,
		leverage:   leverage,
		openedAt:   time.Now(),
	}
	p.positions[req.Symbol] = pos

	p.logger.Info().
		Str("symbol", req.Symbol).
		Str("direction", req.Direction.String()).
		Float64("size", req.Size).
		Float64("fill_price", fillPrice).
		Float64("fee", fee).
		Msg("Paper order filled")

	return &OrderAck{
		OrderID:       pos.id,
		Symbol:        req.Symbol,
		Direction:     req.Direction,
		FilledSize:    req.Size,
		AvgPrice:      fillPrice,
		StopLossSet:   true,
		TakeProfitSet: true,
		Timestamp:     pos.openedAt,
	}, nil
}

// ClosePosition flattens at the current price with exit slippage.
func (p *PaperExchange) ClosePosition(ctx context.Context, symbol string) (*CloseAck, error) {
	price, err := p.data.GetPrice(ctx, symbol)

	p.mu.Lock()
	defer p.mu.Unlock()

	pos, exists := p.positions[symbol]
	if !exists {
		return nil, fmt.Errorf("paper close %s: no open position", symbol)
	}
	if err != nil {
		price = pos.entryPrice
	}

	exitPrice := p.applySlippage(price, pos.size, pos.direction == market.DirectionShort)
	ack := p.closeLocked(pos, exitPrice)
	delete(p.positions, symbol)
	return ack, nil
}

// RealizedStats reports closed-trade counters for inspection.
func (p *PaperExchange) RealizedStats() (closed, wins int, cash float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.wins, p.cash
}

func (p *PaperExchange) closeLocked(pos *paperPosition, exitPrice float64) *CloseAck {
	pnl := p.unrealizedPnL(pos, exitPrice)
	fee := exitPrice * pos.size * p.cfg.TakerFeePct / 100
	net := pnl - fee

	p.cash += net
	p.closed++
	if net > 0 {
		p.wins++
	}

	p.logger.Info().
		Str("symbol", pos.symbol).
		Str("direction", pos.direction.String()).
		Float64("exit_price", exitPrice).
		Float64("net_pnl", net).
		Msg("Paper position closed")

	return &CloseAck{
		Symbol:      pos.symbol,
		ClosedSize:  pos.size,
		ExitPrice:   exitPrice,
		RealizedPnL: net,
		Timestamp:   time.Now(),
	}
}

func (p *PaperExchange) unrealizedPnL(pos *paperPosition, price float64) float64 {
	if pos.direction == market.DirectionLong {
		return (price - pos.entryPrice) * pos.size
	}
	return (pos.entryPrice - price) * pos.size
}

func (p *PaperExchange) marginFor(pos *paperPosition) float64 {
	return pos.entryPrice * pos.size / float64(pos.leverage)
}

// applySlippage worsens the price in the taker's direction, scaling
// with order size and capped at the configured maximum.
func (p *PaperExchange) applySlippage(price, size float64, buying bool) float64 {
	notional := price * size
	slip := p.cfg.SlippagePct + p.cfg.ImpactPerMillion*(notional/1_000_000)
	if slip > p.cfg.MaxSlippagePct {
		slip = p.cfg.MaxSlippagePct
	}
	frac := slip / 100
	if buying {
		return price * (1 + frac)
	}
	return price * (1 - frac)
}

func (p *PaperExchange) rawFor(pos *paperPosition, price float64) RawPosition {
	szi := pos.size
	if pos.direction == market.DirectionShort {
		szi = -szi
	}
	return RawPosition{
		Coin:          pos.symbol,
		Szi:           strconv.FormatFloat(szi, 'f', -1, 64),
		EntryPx:       strconv.FormatFloat(pos.entryPrice, 'f', -1, 64),
		UnrealizedPnl: p.unrealizedPnL(pos, price),
		Leverage:      pos.leverage,
		MarginUsed:    p.marginFor(pos),
	}
}

// bracketExit reports whether price crossed the stop or the target.
// The stop wins when both are crossed in one sweep.
func bracketExit(pos *paperPosition, price float64) (float64, bool) {
	if pos.direction == market.DirectionLong {
		if pos.stopLoss > 0 && price <= pos.stopLoss {
			return pos.stopLoss, true
		}
		if pos.takeProfit > 0 && price >= pos.takeProfit {
			return pos.takeProfit, true
		}
		return 0, false
	}
	if pos.stopLoss > 0 && price >= pos.stopLoss {
		return pos.stopLoss, true
	}
	if pos.takeProfit > 0 && price <= pos.takeProfit {
		return pos.takeProfit, true
	}
	return 0, false
}

var _ Client = (*PaperExchange)(nil)
