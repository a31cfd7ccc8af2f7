// Package journal persists trading activity to PostgreSQL: graded
// signals, gate rejections, executed trades and position closes.
//
// The journal is optional. New returns (nil, nil) when the feature is
// disabled, and every method is a no-op on a nil receiver, so callers
// never have to branch on whether journaling is configured. Journal
// errors must not interrupt trading; callers log them and move on.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/kumotrade/internal/config"
)

// DBPool is the subset of pgxpool.Pool the journal uses. Declared as an
// interface so tests can substitute a pgxmock pool.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Close()
}

// Journal writes trading activity to PostgreSQL.
type Journal struct {
	db     DBPool
	logger zerolog.Logger
}

// New connects to the journal database described by cfg and creates the
// journal tables when they do not exist yet. It returns (nil, nil) when
// the journal is disabled in the configuration.
func New(ctx context.Context, cfg config.JournalConfig) (*Journal, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse journal DSN: %w", err)
	}

	poolCfg.MaxConns = 10
	if cfg.PoolSize > 0 {
		poolCfg.MaxConns = int32(cfg.PoolSize)
	}
	poolCfg.MinConns = 2
	if poolCfg.MinConns > poolCfg.MaxConns {
		poolCfg.MinConns = poolCfg.MaxConns
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create journal pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}

	j := &Journal{
		db:     pool,
		logger: log.With().Str("component", "journal").Logger(),
	}

	if err := j.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	j.logger.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Database).
		Msg("Trade journal connected")

	return j, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() {
	if j == nil || j.db == nil {
		return
	}
	j.db.Close()
}

func (j *Journal) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS journal_signals (
			id UUID PRIMARY KEY,
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			strategy TEXT NOT NULL,
			direction TEXT NOT NULL DEFAULT '',
			score INTEGER NOT NULL,
			confluence INTEGER NOT NULL,
			grade TEXT NOT NULL,
			quality_score INTEGER NOT NULL,
			win_probability DOUBLE PRECISION NOT NULL,
			tradeable BOOLEAN NOT NULL,
			reject_reason TEXT,
			price DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS journal_rejections (
			id UUID PRIMARY KEY,
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			stage TEXT NOT NULL,
			reason TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS journal_trades (
			id UUID PRIMARY KEY,
			symbol TEXT NOT NULL,
			timeframe TEXT NOT NULL,
			strategy TEXT NOT NULL,
			direction TEXT NOT NULL,
			grade TEXT NOT NULL,
			quality_score INTEGER NOT NULL,
			win_probability DOUBLE PRECISION NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			size DOUBLE PRECISION NOT NULL,
			stop_loss DOUBLE PRECISION NOT NULL,
			take_profit DOUBLE PRECISION NOT NULL,
			leverage INTEGER NOT NULL,
			order_id TEXT NOT NULL DEFAULT '',
			opened_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS journal_closes (
			id UUID PRIMARY KEY,
			symbol TEXT NOT NULL,
			direction TEXT NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price DOUBLE PRECISION NOT NULL,
			size DOUBLE PRECISION NOT NULL,
			pnl DOUBLE PRECISION NOT NULL,
			exit_reason TEXT NOT NULL DEFAULT '',
			from_sync BOOLEAN NOT NULL DEFAULT FALSE,
			closed_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_trades_symbol
			ON journal_trades (symbol, opened_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_journal_closes_symbol
			ON journal_closes (symbol, closed_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := j.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create journal schema: %w", err)
		}
	}
	return nil
}
