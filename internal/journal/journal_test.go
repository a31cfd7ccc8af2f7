package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockJournal(t *testing.T) (*Journal, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return &Journal{db: mock, logger: zerolog.Nop()}, mock
}

func TestRecordSignalInsertsRow(t *testing.T) {
	j, mock := newMockJournal(t)

	reason := "rsi 72.0 above long maximum 70"
	mock.ExpectExec("INSERT INTO journal_signals").
		WithArgs(pgxmock.AnyArg(), "ETH", "1h", "smc", "long", 5, 2, "F", 61, 0.74,
			false, &reason, 3000.0, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := j.RecordSignal(context.Background(), &SignalRecord{
		Symbol:         "ETH",
		Timeframe:      "1h",
		Strategy:       "smc",
		Direction:      "long",
		Score:          5,
		Confluence:     2,
		Grade:          "F",
		QualityScore:   61,
		WinProbability: 0.74,
		Tradeable:      false,
		RejectReason:   &reason,
		Price:          3000,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordTradeInsertsRow(t *testing.T) {
	j, mock := newMockJournal(t)

	opened := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO journal_trades").
		WithArgs(pgxmock.AnyArg(), "BTC", "15m", "ichimoku", "long", "A", 94, 0.92,
			50000.0, 0.25, 49000.0, 52000.0, 3, "ord-1", opened, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := j.RecordTrade(context.Background(), &TradeRecord{
		Symbol:         "BTC",
		Timeframe:      "15m",
		Strategy:       "ichimoku",
		Direction:      "long",
		Grade:          "A",
		QualityScore:   94,
		WinProbability: 0.92,
		EntryPrice:     50000,
		Size:           0.25,
		StopLoss:       49000,
		TakeProfit:     52000,
		Leverage:       3,
		OrderID:        "ord-1",
		OpenedAt:       opened,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordTradeGeneratesIdentifiers(t *testing.T) {
	j, mock := newMockJournal(t)

	mock.ExpectExec("INSERT INTO journal_trades").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	rec := &TradeRecord{Symbol: "BTC", OpenedAt: time.Now()}
	require.NoError(t, j.RecordTrade(context.Background(), rec))

	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRejectionKeepsCallerTimestamp(t *testing.T) {
	j, mock := newMockJournal(t)

	created := time.Date(2024, 3, 5, 14, 31, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO journal_rejections").
		WithArgs(pgxmock.AnyArg(), "SOL", "15m", "cooldown", "Cooldown", created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := j.RecordRejection(context.Background(), &RejectionRecord{
		Symbol:    "SOL",
		Timeframe: "15m",
		Stage:     "cooldown",
		Reason:    "Cooldown",
		CreatedAt: created,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordCloseInsertsRow(t *testing.T) {
	j, mock := newMockJournal(t)

	closed := time.Date(2024, 3, 5, 16, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO journal_closes").
		WithArgs(pgxmock.AnyArg(), "ETH", "short", 3000.0, 2900.0, 1.0, 100.0,
			"take_profit", true, closed, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := j.RecordClose(context.Background(), &CloseRecord{
		Symbol:     "ETH",
		Direction:  "short",
		EntryPrice: 3000,
		ExitPrice:  2900,
		Size:       1.0,
		PnL:        100,
		ExitReason: "take_profit",
		FromSync:   true,
		ClosedAt:   closed,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordTradeWrapsError(t *testing.T) {
	j, mock := newMockJournal(t)

	mock.ExpectExec("INSERT INTO journal_trades").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	err := j.RecordTrade(context.Background(), &TradeRecord{Symbol: "BTC"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert trade")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNilJournalIgnoresEverything(t *testing.T) {
	var j *Journal
	ctx := context.Background()

	require.NoError(t, j.RecordSignal(ctx, &SignalRecord{}))
	require.NoError(t, j.RecordRejection(ctx, &RejectionRecord{}))
	require.NoError(t, j.RecordTrade(ctx, &TradeRecord{}))
	require.NoError(t, j.RecordClose(ctx, &CloseRecord{}))

	trades, err := j.RecentTrades(ctx, 10)
	require.NoError(t, err)
	assert.Nil(t, trades)

	stats, err := j.SymbolStats(ctx, "BTC")
	require.NoError(t, err)
	assert.Nil(t, stats)

	j.Close()
}

func TestRecentTradesScansRows(t *testing.T) {
	j, mock := newMockJournal(t)

	cols := []string{
		"id", "symbol", "timeframe", "strategy", "direction", "grade",
		"quality_score", "win_probability", "entry_price", "size",
		"stop_loss", "take_profit", "leverage", "order_id", "opened_at",
		"created_at",
	}
	now := time.Date(2024, 3, 5, 18, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows(cols).
		AddRow(uuid.New(), "BTC", "15m", "ichimoku", "long", "A", 94, 0.92,
			50000.0, 0.25, 49000.0, 52000.0, 3, "ord-1", now, now).
		AddRow(uuid.New(), "ETH", "1h", "squeeze", "short", "B", 55, 0.78,
			3000.0, 1.5, 3100.0, 2800.0, 2, "ord-2", now.Add(-time.Hour), now)

	mock.ExpectQuery("FROM journal_trades").WithArgs(5).WillReturnRows(rows)

	trades, err := j.RecentTrades(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.Equal(t, "BTC", trades[0].Symbol)
	assert.Equal(t, "long", trades[0].Direction)
	assert.Equal(t, 94, trades[0].QualityScore)
	assert.Equal(t, "ETH", trades[1].Symbol)
	assert.Equal(t, "squeeze", trades[1].Strategy)
	assert.InDelta(t, 0.78, trades[1].WinProbability, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentTradesUsesDefaultLimit(t *testing.T) {
	j, mock := newMockJournal(t)

	mock.ExpectQuery("FROM journal_trades").
		WithArgs(defaultTradeLimit).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	trades, err := j.RecentTrades(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSymbolStatsAggregatesCloses(t *testing.T) {
	j, mock := newMockJournal(t)

	rows := pgxmock.NewRows([]string{"closes", "wins", "losses", "net_pnl"}).
		AddRow(7, 4, 2, 123.5)
	mock.ExpectQuery("FROM journal_closes").WithArgs("BTC").WillReturnRows(rows)

	stats, err := j.SymbolStats(context.Background(), "BTC")
	require.NoError(t, err)
	require.NotNil(t, stats)

	assert.Equal(t, "BTC", stats.Symbol)
	assert.Equal(t, 7, stats.Closes)
	assert.Equal(t, 4, stats.Wins)
	assert.Equal(t, 2, stats.Losses)
	assert.InDelta(t, 123.5, stats.NetPnL, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSymbolStatsWrapsError(t *testing.T) {
	j, mock := newMockJournal(t)

	mock.ExpectQuery("FROM journal_closes").
		WithArgs("BTC").
		WillReturnError(errors.New("relation does not exist"))

	stats, err := j.SymbolStats(context.Background(), "BTC")
	require.Error(t, err)
	assert.Nil(t, stats)
	assert.Contains(t, err.Error(), "failed to query symbol stats")
	assert.NoError(t, mock.ExpectationsWereMet())
}
