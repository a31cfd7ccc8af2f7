// Package config loads, validates and persists engine configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/ajitpratap0/kumotrade/internal/market"
)

// Config holds all application configuration. The Engine section is the
// mutable trading behaviour persisted through the config store; the
// rest is static infrastructure wiring.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Vault    VaultConfig    `mapstructure:"vault"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Journal  JournalConfig  `mapstructure:"journal"`
}

// AppConfig contains application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// EngineConfig is the mutable trading configuration.
type EngineConfig struct {
	SchemaVersion string `mapstructure:"schema_version" json:"schema_version" yaml:"schema_version"`

	Symbols    []string           `mapstructure:"symbols" json:"symbols" yaml:"symbols"`
	Timeframes []market.Timeframe `mapstructure:"timeframes" json:"timeframes" yaml:"timeframes"`

	Mode     string `mapstructure:"mode" json:"mode" yaml:"mode"`             // "auto" or "manual"
	Strategy string `mapstructure:"strategy" json:"strategy" yaml:"strategy"` // "ichimoku", "smc", "bollinger"

	Leverage            int `mapstructure:"leverage" json:"leverage" yaml:"leverage"`
	MaxConcurrentTrades int `mapstructure:"max_concurrent_trades" json:"max_concurrent_trades" yaml:"max_concurrent_trades"`

	TPSLMode  string  `mapstructure:"tpsl_mode" json:"tpsl_mode" yaml:"tpsl_mode"` // "auto", "atr", "percent", "ichimoku"
	ATRMultSL float64 `mapstructure:"atr_mult_sl" json:"atr_mult_sl" yaml:"atr_mult_sl"`
	ATRMultTP float64 `mapstructure:"atr_mult_tp" json:"atr_mult_tp" yaml:"atr_mult_tp"`
	// Percent-mode overrides; 0 falls back to the timeframe preset.
	CustomSLPct float64 `mapstructure:"custom_sl_pct" json:"custom_sl_pct" yaml:"custom_sl_pct"`
	CustomTPPct float64 `mapstructure:"custom_tp_pct" json:"custom_tp_pct" yaml:"custom_tp_pct"`

	EnabledSignals []string `mapstructure:"enabled_signals" json:"enabled_signals" yaml:"enabled_signals"`

	UseRSIFilter  bool    `mapstructure:"use_rsi_filter" json:"use_rsi_filter" yaml:"use_rsi_filter"`
	RSIOverbought float64 `mapstructure:"rsi_overbought" json:"rsi_overbought" yaml:"rsi_overbought"`
	RSIOversold   float64 `mapstructure:"rsi_oversold" json:"rsi_oversold" yaml:"rsi_oversold"`

	MultiTimeframe MultiTimeframeConfig `mapstructure:"multi_timeframe" json:"multi_timeframe" yaml:"multi_timeframe"`

	SymbolCooldown              time.Duration `mapstructure:"symbol_cooldown" json:"symbol_cooldown" yaml:"symbol_cooldown"`
	GlobalCooldown              time.Duration `mapstructure:"global_cooldown" json:"global_cooldown" yaml:"global_cooldown"`
	MaxConsecutiveSameDirection int           `mapstructure:"max_consecutive_same_direction" json:"max_consecutive_same_direction" yaml:"max_consecutive_same_direction"`
	MaxConsecutiveLosses        int           `mapstructure:"max_consecutive_losses" json:"max_consecutive_losses" yaml:"max_consecutive_losses"`
	PauseAfterLosses            time.Duration `mapstructure:"pause_after_losses" json:"pause_after_losses" yaml:"pause_after_losses"`

	RiskPerTradePct float64 `mapstructure:"risk_per_trade_pct" json:"risk_per_trade_pct" yaml:"risk_per_trade_pct"`
	// MinRRR overrides the preset minimum when > 0.
	MinRRR float64 `mapstructure:"min_rrr" json:"min_rrr" yaml:"min_rrr"`

	// AnalysisInterval overrides the preset interval when > 0.
	AnalysisInterval time.Duration `mapstructure:"analysis_interval" json:"analysis_interval" yaml:"analysis_interval"`
	CandleWindow     int           `mapstructure:"candle_window" json:"candle_window" yaml:"candle_window"`
}

// MultiTimeframeConfig controls the confirmation-timeframe bonus.
type MultiTimeframeConfig struct {
	Enabled           bool               `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	ConfirmTimeframes []market.Timeframe `mapstructure:"confirm_timeframes" json:"confirm_timeframes" yaml:"confirm_timeframes"`
	BonusWeight       float64            `mapstructure:"bonus_weight" json:"bonus_weight" yaml:"bonus_weight"`
}

// ExchangeConfig wires the venue adapter.
type ExchangeConfig struct {
	Mode            string        `mapstructure:"mode"` // "paper" or "live"
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RateLimitPerSec float64       `mapstructure:"rate_limit_per_sec"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
	SlippagePct     float64       `mapstructure:"slippage_pct"`
	TakerFeePct     float64       `mapstructure:"taker_fee_pct"`
	PaperEquity     float64       `mapstructure:"paper_equity"`
}

// RedisConfig contains the config-store backing settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GetRedisAddr returns the host:port address.
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// VaultConfig contains the credential-provider settings.
type VaultConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	MountPath  string `mapstructure:"mount_path"`
	SecretPath string `mapstructure:"secret_path"`
}

// NATSConfig contains the event-bridge settings.
type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// TelegramConfig contains the alert-sink settings.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	ChatID  int64  `mapstructure:"chat_id"`
}

// MetricsConfig contains the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// JournalConfig contains the trade-journal database settings.
type JournalConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// GetDSN returns the PostgreSQL connection string.
func (c *JournalConfig) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// Load reads configuration from the given file (or the default search
// path), applies KUMOTRADE_* environment overrides and defaults, and
// validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("KUMOTRADE")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults and environment only.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultEngineConfig returns the engine section as Load would produce
// it with no file and no environment.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		SchemaVersion:               SchemaVersion,
		Symbols:                     []string{"BTC", "ETH"},
		Timeframes:                  []market.Timeframe{market.Timeframe15m},
		Mode:                        "auto",
		Strategy:                    "ichimoku",
		Leverage:                    5,
		MaxConcurrentTrades:         3,
		TPSLMode:                    "auto",
		ATRMultSL:                   1.5,
		ATRMultTP:                   2.0,
		EnabledSignals:              []string{"tk_cross", "kumo_breakout", "kumo_twist", "kijun_bounce"},
		UseRSIFilter:                true,
		RSIOverbought:               75,
		RSIOversold:                 25,
		SymbolCooldown:              10 * time.Minute,
		GlobalCooldown:              2 * time.Minute,
		MaxConsecutiveSameDirection: 4,
		MaxConsecutiveLosses:        3,
		PauseAfterLosses:            30 * time.Minute,
		RiskPerTradePct:             1.0,
		CandleWindow:                250,
	}
}

func setDefaults(v *viper.Viper) {
	// App
	v.SetDefault("app.name", "kumotrade")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "console")

	// Engine
	def := DefaultEngineConfig()
	v.SetDefault("engine.schema_version", def.SchemaVersion)
	v.SetDefault("engine.symbols", def.Symbols)
	v.SetDefault("engine.timeframes", []string{"15m"})
	v.SetDefault("engine.mode", def.Mode)
	v.SetDefault("engine.strategy", def.Strategy)
	v.SetDefault("engine.leverage", def.Leverage)
	v.SetDefault("engine.max_concurrent_trades", def.MaxConcurrentTrades)
	v.SetDefault("engine.tpsl_mode", def.TPSLMode)
	v.SetDefault("engine.atr_mult_sl", def.ATRMultSL)
	v.SetDefault("engine.atr_mult_tp", def.ATRMultTP)
	v.SetDefault("engine.custom_sl_pct", 0.0)
	v.SetDefault("engine.custom_tp_pct", 0.0)
	v.SetDefault("engine.enabled_signals", def.EnabledSignals)
	v.SetDefault("engine.use_rsi_filter", def.UseRSIFilter)
	v.SetDefault("engine.rsi_overbought", def.RSIOverbought)
	v.SetDefault("engine.rsi_oversold", def.RSIOversold)
	v.SetDefault("engine.multi_timeframe.enabled", false)
	v.SetDefault("engine.multi_timeframe.confirm_timeframes", []string{"1h"})
	v.SetDefault("engine.multi_timeframe.bonus_weight", 0.03)
	v.SetDefault("engine.symbol_cooldown", "10m")
	v.SetDefault("engine.global_cooldown", "2m")
	v.SetDefault("engine.max_consecutive_same_direction", def.MaxConsecutiveSameDirection)
	v.SetDefault("engine.max_consecutive_losses", def.MaxConsecutiveLosses)
	v.SetDefault("engine.pause_after_losses", "30m")
	v.SetDefault("engine.risk_per_trade_pct", def.RiskPerTradePct)
	v.SetDefault("engine.min_rrr", 0.0)
	v.SetDefault("engine.analysis_interval", "0s")
	v.SetDefault("engine.candle_window", def.CandleWindow)

	// Exchange
	v.SetDefault("exchange.mode", "paper")
	v.SetDefault("exchange.request_timeout", "10s")
	v.SetDefault("exchange.rate_limit_per_sec", 10.0)
	v.SetDefault("exchange.rate_limit_burst", 20)
	v.SetDefault("exchange.slippage_pct", 0.05)
	v.SetDefault("exchange.taker_fee_pct", 0.05)
	v.SetDefault("exchange.paper_equity", 10000.0)

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Vault
	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "http://localhost:8200")
	v.SetDefault("vault.mount_path", "secret")
	v.SetDefault("vault.secret_path", "kumotrade/trading")

	// NATS
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject_prefix", "kumotrade.events.")

	// Telegram
	v.SetDefault("telegram.enabled", false)

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9100)

	// Journal
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.host", "localhost")
	v.SetDefault("journal.port", 5432)
	v.SetDefault("journal.user", "kumotrade")
	v.SetDefault("journal.password", "")
	v.SetDefault("journal.database", "kumotrade")
	v.SetDefault("journal.ssl_mode", "disable")
	v.SetDefault("journal.pool_size", 5)
}
