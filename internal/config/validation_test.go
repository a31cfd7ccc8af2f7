package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/kumotrade/internal/market"
)

// getValidConfig returns a valid configuration for testing
func getValidConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "kumotrade",
			Environment: "development",
			LogLevel:    "info",
			LogFormat:   "console",
		},
		Engine: DefaultEngineConfig(),
		Exchange: ExchangeConfig{
			Mode:            "paper",
			RequestTimeout:  10 * time.Second,
			RateLimitPerSec: 10,
			RateLimitBurst:  20,
			SlippagePct:     0.05,
			TakerFeePct:     0.05,
			PaperEquity:     10000,
		},
		Redis: RedisConfig{
			Enabled: true,
			Host:    "localhost",
			Port:    6379,
		},
		NATS: NATSConfig{
			Enabled:       true,
			URL:           "nats://localhost:4222",
			SubjectPrefix: "kumotrade.events.",
		},
		Telegram: TelegramConfig{
			Enabled: false,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9100,
		},
		Journal: JournalConfig{
			Enabled:  true,
			Host:     "localhost",
			Port:     5432,
			User:     "kumotrade",
			Database: "kumotrade",
			SSLMode:  "disable",
			PoolSize: 5,
		},
	}
}

func TestValidateValidConfig(t *testing.T) {
	cfg := getValidConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateApp(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.App.LogLevel = "verbose"
			},
			expectError: "app.log_level",
		},
		{
			name: "invalid log format",
			modify: func(c *Config) {
				c.App.LogFormat = "xml"
			},
			expectError: "app.log_format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateEngine(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "no symbols",
			modify: func(c *Config) {
				c.Engine.Symbols = nil
			},
			expectError: "engine.symbols",
		},
		{
			name: "duplicate symbol",
			modify: func(c *Config) {
				c.Engine.Symbols = []string{"BTC", "BTC"}
			},
			expectError: "duplicate symbol",
		},
		{
			name: "no timeframes",
			modify: func(c *Config) {
				c.Engine.Timeframes = nil
			},
			expectError: "engine.timeframes",
		},
		{
			name: "unknown timeframe",
			modify: func(c *Config) {
				c.Engine.Timeframes = []market.Timeframe{"7m"}
			},
			expectError: "unknown timeframe",
		},
		{
			name: "invalid mode",
			modify: func(c *Config) {
				c.Engine.Mode = "turbo"
			},
			expectError: "engine.mode",
		},
		{
			name: "unknown strategy",
			modify: func(c *Config) {
				c.Engine.Strategy = "martingale"
			},
			expectError: "engine.strategy",
		},
		{
			name: "leverage too low",
			modify: func(c *Config) {
				c.Engine.Leverage = 0
			},
			expectError: "engine.leverage",
		},
		{
			name: "leverage too high",
			modify: func(c *Config) {
				c.Engine.Leverage = 51
			},
			expectError: "engine.leverage",
		},
		{
			name: "invalid tpsl mode",
			modify: func(c *Config) {
				c.Engine.TPSLMode = "trailing"
			},
			expectError: "engine.tpsl_mode",
		},
		{
			name: "unknown signal",
			modify: func(c *Config) {
				c.Engine.EnabledSignals = []string{"moon_phase"}
			},
			expectError: "unknown signal",
		},
		{
			name: "inverted rsi bands",
			modify: func(c *Config) {
				c.Engine.RSIOversold = 80
				c.Engine.RSIOverbought = 20
			},
			expectError: "rsi",
		},
		{
			name: "risk per trade too high",
			modify: func(c *Config) {
				c.Engine.RiskPerTradePct = 15
			},
			expectError: "engine.risk_per_trade_pct",
		},
		{
			name: "zero risk per trade",
			modify: func(c *Config) {
				c.Engine.RiskPerTradePct = 0
			},
			expectError: "engine.risk_per_trade_pct",
		},
		{
			name: "candle window too small",
			modify: func(c *Config) {
				c.Engine.CandleWindow = 30
			},
			expectError: "engine.candle_window",
		},
		{
			name: "mtf enabled without confirm timeframes",
			modify: func(c *Config) {
				c.Engine.MultiTimeframe.Enabled = true
				c.Engine.MultiTimeframe.ConfirmTimeframes = nil
			},
			expectError: "multi_timeframe.confirm_timeframes",
		},
		{
			name: "negative cooldown",
			modify: func(c *Config) {
				c.Engine.SymbolCooldown = -time.Minute
			},
			expectError: "engine.symbol_cooldown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
			assert.True(t, IsConfigError(err))
		})
	}
}

func TestValidateExchange(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(*Config)
		expectError string
	}{
		{
			name: "invalid mode",
			modify: func(c *Config) {
				c.Exchange.Mode = "simulated"
			},
			expectError: "exchange.mode",
		},
		{
			name: "zero timeout",
			modify: func(c *Config) {
				c.Exchange.RequestTimeout = 0
			},
			expectError: "exchange.request_timeout",
		},
		{
			name: "paper mode without equity",
			modify: func(c *Config) {
				c.Exchange.PaperEquity = 0
			},
			expectError: "exchange.paper_equity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := getValidConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestValidateDisabledSectionsSkipped(t *testing.T) {
	cfg := getValidConfig()
	cfg.Redis.Enabled = false
	cfg.Redis.Host = ""
	cfg.Journal.Enabled = false
	cfg.Journal.User = ""
	cfg.NATS.Enabled = false
	cfg.NATS.URL = ""

	require.NoError(t, cfg.Validate())
}

func TestValidateJournal(t *testing.T) {
	cfg := getValidConfig()
	cfg.Journal.User = ""
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal.user")
}

func TestNewConfigError(t *testing.T) {
	err := NewConfigError("engine.leverage", "out of range")
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "engine.leverage")
}
