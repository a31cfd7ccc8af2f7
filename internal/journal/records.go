package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SignalRecord is a graded signal as it left the grader, whether or not
// it went on to trade.
type SignalRecord struct {
	ID             uuid.UUID `db:"id"`
	Symbol         string    `db:"symbol"`
	Timeframe      string    `db:"timeframe"`
	Strategy       string    `db:"strategy"`
	Direction      string    `db:"direction"`
	Score          int       `db:"score"`
	Confluence     int       `db:"confluence"`
	Grade          string    `db:"grade"`
	QualityScore   int       `db:"quality_score"`
	WinProbability float64   `db:"win_probability"`
	Tradeable      bool      `db:"tradeable"`
	RejectReason   *string   `db:"reject_reason"`
	Price          float64   `db:"price"`
	CreatedAt      time.Time `db:"created_at"`
}

// RejectionRecord is a signal the trade gate turned away, with the stage
// that rejected it.
type RejectionRecord struct {
	ID        uuid.UUID `db:"id"`
	Symbol    string    `db:"symbol"`
	Timeframe string    `db:"timeframe"`
	Stage     string    `db:"stage"`
	Reason    string    `db:"reason"`
	CreatedAt time.Time `db:"created_at"`
}

// TradeRecord is an executed entry with its protective bracket.
type TradeRecord struct {
	ID             uuid.UUID `db:"id"`
	Symbol         string    `db:"symbol"`
	Timeframe      string    `db:"timeframe"`
	Strategy       string    `db:"strategy"`
	Direction      string    `db:"direction"`
	Grade          string    `db:"grade"`
	QualityScore   int       `db:"quality_score"`
	WinProbability float64   `db:"win_probability"`
	EntryPrice     float64   `db:"entry_price"`
	Size           float64   `db:"size"`
	StopLoss       float64   `db:"stop_loss"`
	TakeProfit     float64   `db:"take_profit"`
	Leverage       int       `db:"leverage"`
	OrderID        string    `db:"order_id"`
	OpenedAt       time.Time `db:"opened_at"`
	CreatedAt      time.Time `db:"created_at"`
}

// CloseRecord is a position close observed by the position manager.
// FromSync marks closes discovered through reconciliation rather than
// through the engine's own exit handling.
type CloseRecord struct {
	ID         uuid.UUID `db:"id"`
	Symbol     string    `db:"symbol"`
	Direction  string    `db:"direction"`
	EntryPrice float64   `db:"entry_price"`
	ExitPrice  float64   `db:"exit_price"`
	Size       float64   `db:"size"`
	PnL        float64   `db:"pnl"`
	ExitReason string    `db:"exit_reason"`
	FromSync   bool      `db:"from_sync"`
	ClosedAt   time.Time `db:"closed_at"`
	CreatedAt  time.Time `db:"created_at"`
}

// RecordSignal inserts a graded signal.
func (j *Journal) RecordSignal(ctx context.Context, rec *SignalRecord) error {
	if j == nil {
		return nil
	}

	query := `
		INSERT INTO journal_signals (
			id, symbol, timeframe, strategy, direction, score, confluence,
			grade, quality_score, win_probability, tradeable, reject_reason,
			price, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	fillDefaults(&rec.ID, &rec.CreatedAt)

	_, err := j.db.Exec(ctx, query,
		rec.ID,
		rec.Symbol,
		rec.Timeframe,
		rec.Strategy,
		rec.Direction,
		rec.Score,
		rec.Confluence,
		rec.Grade,
		rec.QualityScore,
		rec.WinProbability,
		rec.Tradeable,
		rec.RejectReason,
		rec.Price,
		rec.CreatedAt,
	)
	if err != nil {
		j.logger.Error().Err(err).Str("symbol", rec.Symbol).Msg("Failed to record signal")
		return fmt.Errorf("failed to insert signal: %w", err)
	}
	return nil
}

// RecordRejection inserts a trade-gate rejection.
func (j *Journal) RecordRejection(ctx context.Context, rec *RejectionRecord) error {
	if j == nil {
		return nil
	}

	query := `
		INSERT INTO journal_rejections (
			id, symbol, timeframe, stage, reason, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	fillDefaults(&rec.ID, &rec.CreatedAt)

	_, err := j.db.Exec(ctx, query,
		rec.ID,
		rec.Symbol,
		rec.Timeframe,
		rec.Stage,
		rec.Reason,
		rec.CreatedAt,
	)
	if err != nil {
		j.logger.Error().Err(err).Str("symbol", rec.Symbol).Msg("Failed to record rejection")
		return fmt.Errorf("failed to insert rejection: %w", err)
	}
	return nil
}

// RecordTrade inserts an executed trade.
func (j *Journal) RecordTrade(ctx context.Context, rec *TradeRecord) error {
	if j == nil {
		return nil
	}

	query := `
		INSERT INTO journal_trades (
			id, symbol, timeframe, strategy, direction, grade, quality_score,
			win_probability, entry_price, size, stop_loss, take_profit,
			leverage, order_id, opened_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
	`

	fillDefaults(&rec.ID, &rec.CreatedAt)

	_, err := j.db.Exec(ctx, query,
		rec.ID,
		rec.Symbol,
		rec.Timeframe,
		rec.Strategy,
		rec.Direction,
		rec.Grade,
		rec.QualityScore,
		rec.WinProbability,
		rec.EntryPrice,
		rec.Size,
		rec.StopLoss,
		rec.TakeProfit,
		rec.Leverage,
		rec.OrderID,
		rec.OpenedAt,
		rec.CreatedAt,
	)
	if err != nil {
		j.logger.Error().Err(err).Str("symbol", rec.Symbol).Msg("Failed to record trade")
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// RecordClose inserts a position close.
func (j *Journal) RecordClose(ctx context.Context, rec *CloseRecord) error {
	if j == nil {
		return nil
	}

	query := `
		INSERT INTO journal_closes (
			id, symbol, direction, entry_price, exit_price, size, pnl,
			exit_reason, from_sync, closed_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	fillDefaults(&rec.ID, &rec.CreatedAt)

	_, err := j.db.Exec(ctx, query,
		rec.ID,
		rec.Symbol,
		rec.Direction,
		rec.EntryPrice,
		rec.ExitPrice,
		rec.Size,
		rec.PnL,
		rec.ExitReason,
		rec.FromSync,
		rec.ClosedAt,
		rec.CreatedAt,
	)
	if err != nil {
		j.logger.Error().Err(err).Str("symbol", rec.Symbol).Msg("Failed to record close")
		return fmt.Errorf("failed to insert close: %w", err)
	}
	return nil
}

func fillDefaults(id *uuid.UUID, createdAt *time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	if createdAt.IsZero() {
		*createdAt = time.Now()
	}
}
