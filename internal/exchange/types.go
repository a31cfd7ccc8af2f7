package exchange

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ajitpratap0/kumotrade/internal/market"
)

// Balance is the futures account snapshot.
type Balance struct {
	TotalEquity      float64 `json:"total_equity"`
	AvailableBalance float64 `json:"available_balance"`
	MarginUsed       float64 `json:"margin_used"`
}

// FundingRate is the current funding state of one perp.
type FundingRate struct {
	Symbol          string  `json:"symbol"`
	Rate            float64 `json:"rate"`
	NextFundingTime int64   `json:"next_funding_time"`
}

// Position is a normalized open position.
type Position struct {
	Symbol           string           `json:"symbol"`
	Direction        market.Direction `json:"direction"`
	Size             float64          `json:"size"`
	EntryPrice       float64          `json:"entry_price"`
	UnrealizedPnL    float64          `json:"unrealized_pnl"`
	LiquidationPrice float64          `json:"liquidation_price,omitempty"`
	Leverage         int              `json:"leverage,omitempty"`
	MarginUsed       float64          `json:"margin_used,omitempty"`
}

// Notional returns size times entry price.
func (p Position) Notional() float64 {
	return p.Size * p.EntryPrice
}

// RawPosition is a venue position payload before normalization. Venues
// disagree on field spellings: some report coin/szi/entryPx with the
// size as a signed decimal string, others symbol/size/entryPrice with
// an unsigned size and a separate side. Normalize resolves either
// spelling.
type RawPosition struct {
	Coin   string `json:"coin,omitempty"`
	Symbol string `json:"symbol,omitempty"`

	Szi  string  `json:"szi,omitempty"`
	Size float64 `json:"size,omitempty"`
	Side string  `json:"side,omitempty"`

	EntryPx    string  `json:"entryPx,omitempty"`
	EntryPrice float64 `json:"entryPrice,omitempty"`

	UnrealizedPnl float64 `json:"unrealizedPnl,omitempty"`
	LiquidationPx string  `json:"liquidationPx,omitempty"`
	Leverage      int     `json:"leverage,omitempty"`
	MarginUsed    float64 `json:"marginUsed,omitempty"`
}

// Normalize resolves the dual field spellings into a Position. The
// returned position has Size 0 for flat entries; callers filter those.
func (r *RawPosition) Normalize() (Position, error) {
	symbol := r.Coin
	if symbol == "" {
		symbol = r.Symbol
	}
	if symbol == "" {
		return Position{}, fmt.Errorf("position has neither coin nor symbol")
	}

	signed := r.Size
	if r.Szi != "" {
		v, err := strconv.ParseFloat(r.Szi, 64)
		if err != nil {
			return Position{}, fmt.Errorf("position %s has unparseable szi %q: %w", symbol, r.Szi, err)
		}
		signed = v
	}

	direction := market.DirectionLong
	switch strings.ToLower(r.Side) {
	case "short", "sell":
		direction = market.DirectionShort
		if signed > 0 {
			signed = -signed
		}
	}
	if signed < 0 {
		direction = market.DirectionShort
	}

	entry := r.EntryPrice
	if r.EntryPx != "" {
		v, err := strconv.ParseFloat(r.EntryPx, 64)
		if err != nil {
			return Position{}, fmt.Errorf("position %s has unparseable entryPx %q: %w", symbol, r.EntryPx, err)
		}
		entry = v
	}

	size := signed
	if size < 0 {
		size = -size
	}
	if size > 0 && entry <= 0 {
		return Position{}, fmt.Errorf("position %s has size %.8f but no entry price", symbol, size)
	}

	var liq float64
	if r.LiquidationPx != "" {
		if v, err := strconv.ParseFloat(r.LiquidationPx, 64); err == nil {
			liq = v
		}
	}

	return Position{
		Symbol:           symbol,
		Direction:        direction,
		Size:             size,
		EntryPrice:       entry,
		UnrealizedPnL:    r.UnrealizedPnl,
		LiquidationPrice: liq,
		Leverage:         r.Leverage,
		MarginUsed:       r.MarginUsed,
	}, nil
}

// OrderRequest asks for a market entry bracketed by a stop loss and a
// take profit.
type OrderRequest struct {
	Symbol        string           `json:"symbol"`
	Direction     market.Direction `json:"direction"`
	Size          float64          `json:"size"`
	Leverage      int              `json:"leverage"`
	StopLoss      float64          `json:"stop_loss"`
	TakeProfit    float64          `json:"take_profit"`
	ClientOrderID string           `json:"client_order_id,omitempty"`
}

// Validate checks the request before it reaches the venue.
func (r OrderRequest) Validate() error {
	if r.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if !r.Direction.IsValid() {
		return fmt.Errorf("invalid direction: %q", r.Direction)
	}
	if r.Size <= 0 {
		return fmt.Errorf("size must be positive, got %.8f", r.Size)
	}
	if r.StopLoss <= 0 || r.TakeProfit <= 0 {
		return fmt.Errorf("stop loss and take profit are required")
	}
	if r.Direction == market.DirectionLong && r.StopLoss >= r.TakeProfit {
		return fmt.Errorf("long bracket inverted: sl %.8f >= tp %.8f", r.StopLoss, r.TakeProfit)
	}
	if r.Direction == market.DirectionShort && r.StopLoss <= r.TakeProfit {
		return fmt.Errorf("short bracket inverted: sl %.8f <= tp %.8f", r.StopLoss, r.TakeProfit)
	}
	if r.Leverage < 0 {
		return fmt.Errorf("leverage must not be negative")
	}
	return nil
}

// OrderAck confirms a filled entry. StopLossSet/TakeProfitSet report
// whether the protective orders were accepted; an entry with a missing
// stop is unprotected and the caller must react.
type OrderAck struct {
	OrderID       string           `json:"order_id"`
	Symbol        string           `json:"symbol"`
	Direction     market.Direction `json:"direction"`
	FilledSize    float64          `json:"filled_size"`
	AvgPrice      float64          `json:"avg_price"`
	StopLossSet   bool             `json:"stop_loss_set"`
	TakeProfitSet bool             `json:"take_profit_set"`
	Timestamp     time.Time        `json:"timestamp"`
}

// CloseAck confirms a position close.
type CloseAck struct {
	Symbol      string    `json:"symbol"`
	ClosedSize  float64   `json:"closed_size"`
	ExitPrice   float64   `json:"exit_price"`
	RealizedPnL float64   `json:"realized_pnl"`
	Timestamp   time.Time `json:"timestamp"`
}
