package journal

import (
	"context"
	"fmt"
)

const defaultTradeLimit = 20

// SymbolStats summarises the closed trades of one symbol.
type SymbolStats struct {
	Symbol string
	Closes int
	Wins   int
	Losses int
	NetPnL float64
}

// RecentTrades returns the most recently opened trades, newest first.
// A limit of zero or less uses the default of 20.
func (j *Journal) RecentTrades(ctx context.Context, limit int) ([]*TradeRecord, error) {
	if j == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultTradeLimit
	}

	query := `
		SELECT
			id, symbol, timeframe, strategy, direction, grade, quality_score,
			win_probability, entry_price, size, stop_loss, take_profit,
			leverage, order_id, opened_at, created_at
		FROM journal_trades
		ORDER BY opened_at DESC
		LIMIT $1
	`

	rows, err := j.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []*TradeRecord
	for rows.Next() {
		rec := &TradeRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.Symbol,
			&rec.Timeframe,
			&rec.Strategy,
			&rec.Direction,
			&rec.Grade,
			&rec.QualityScore,
			&rec.WinProbability,
			&rec.EntryPrice,
			&rec.Size,
			&rec.StopLoss,
			&rec.TakeProfit,
			&rec.Leverage,
			&rec.OrderID,
			&rec.OpenedAt,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trades: %w", err)
	}

	return trades, nil
}

// SymbolStats aggregates the journal_closes rows of one symbol.
func (j *Journal) SymbolStats(ctx context.Context, symbol string) (*SymbolStats, error) {
	if j == nil {
		return nil, nil
	}

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE pnl > 0),
			COUNT(*) FILTER (WHERE pnl < 0),
			COALESCE(SUM(pnl), 0)
		FROM journal_closes
		WHERE symbol = $1
	`

	stats := &SymbolStats{Symbol: symbol}
	err := j.db.QueryRow(ctx, query, symbol).Scan(
		&stats.Closes,
		&stats.Wins,
		&stats.Losses,
		&stats.NetPnL,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbol stats: %w", err)
	}

	return stats, nil
}
