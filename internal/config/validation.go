package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d error(s):\n\n", len(ve)))
	for i, err := range ve {
		sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.Field, err.Message))
	}
	return sb.String()
}

// NewConfigError builds a single-field validation error.
func NewConfigError(field, message string) error {
	return ValidationErrors{{Field: field, Message: message}}
}

// IsConfigError reports whether err is a configuration validation error.
func IsConfigError(err error) bool {
	var ve ValidationErrors
	return errors.As(err, &ve)
}

var (
	validModes     = map[string]bool{"auto": true, "manual": true}
	validStrategy  = map[string]bool{"ichimoku": true, "smc": true, "bollinger": true}
	validTPSLModes = map[string]bool{"auto": true, "atr": true, "percent": true, "ichimoku": true}
	validSignals   = map[string]bool{"tk_cross": true, "kumo_breakout": true, "kumo_twist": true, "kijun_bounce": true}
	validExchange  = map[string]bool{"paper": true, "live": true}
)

// Validate performs comprehensive configuration validation.
func (c *Config) Validate() error {
	var errs ValidationErrors

	errs = append(errs, c.validateApp()...)
	errs = append(errs, c.Engine.validate("engine")...)
	errs = append(errs, c.validateExchange()...)
	errs = append(errs, c.validateRedis()...)
	errs = append(errs, c.validateNATS()...)
	errs = append(errs, c.validateTelegram()...)
	errs = append(errs, c.validateMetrics()...)
	errs = append(errs, c.validateJournal()...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateApp() ValidationErrors {
	var errs ValidationErrors

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true}
	if !validLevels[strings.ToLower(c.App.LogLevel)] {
		errs = append(errs, ValidationError{
			Field:   "app.log_level",
			Message: fmt.Sprintf("invalid log level '%s' (must be trace, debug, info, warn, error, or fatal)", c.App.LogLevel),
		})
	}

	if c.App.LogFormat != "json" && c.App.LogFormat != "console" {
		errs = append(errs, ValidationError{
			Field:   "app.log_format",
			Message: fmt.Sprintf("invalid log format '%s' (must be json or console)", c.App.LogFormat),
		})
	}

	return errs
}

// validate checks the engine section. It is also run against updates
// arriving through the config store before they are applied.
func (e *EngineConfig) validate(prefix string) ValidationErrors {
	var errs ValidationErrors

	field := func(name string) string { return prefix + "." + name }

	if len(e.Symbols) == 0 {
		errs = append(errs, ValidationError{Field: field("symbols"), Message: "at least one symbol is required"})
	}
	seen := make(map[string]bool, len(e.Symbols))
	for _, s := range e.Symbols {
		if s == "" {
			errs = append(errs, ValidationError{Field: field("symbols"), Message: "symbol must not be empty"})
			continue
		}
		if seen[s] {
			errs = append(errs, ValidationError{Field: field("symbols"), Message: fmt.Sprintf("duplicate symbol '%s'", s)})
		}
		seen[s] = true
	}

	if len(e.Timeframes) == 0 {
		errs = append(errs, ValidationError{Field: field("timeframes"), Message: "at least one timeframe is required"})
	}
	for _, tf := range e.Timeframes {
		if !tf.IsValid() {
			errs = append(errs, ValidationError{Field: field("timeframes"), Message: fmt.Sprintf("unknown timeframe '%s'", tf)})
		}
	}

	if !validModes[e.Mode] {
		errs = append(errs, ValidationError{Field: field("mode"), Message: fmt.Sprintf("invalid mode '%s' (must be auto or manual)", e.Mode)})
	}
	if !validStrategy[e.Strategy] {
		errs = append(errs, ValidationError{Field: field("strategy"), Message: fmt.Sprintf("unknown strategy '%s'", e.Strategy)})
	}

	if e.Leverage < 1 || e.Leverage > 50 {
		errs = append(errs, ValidationError{Field: field("leverage"), Message: fmt.Sprintf("leverage %d out of range [1, 50]", e.Leverage)})
	}
	if e.MaxConcurrentTrades < 1 {
		errs = append(errs, ValidationError{Field: field("max_concurrent_trades"), Message: "must be at least 1"})
	}

	if !validTPSLModes[e.TPSLMode] {
		errs = append(errs, ValidationError{Field: field("tpsl_mode"), Message: fmt.Sprintf("invalid tpsl mode '%s'", e.TPSLMode)})
	}
	if e.ATRMultSL <= 0 {
		errs = append(errs, ValidationError{Field: field("atr_mult_sl"), Message: "must be positive"})
	}
	if e.ATRMultTP <= 0 {
		errs = append(errs, ValidationError{Field: field("atr_mult_tp"), Message: "must be positive"})
	}
	if e.CustomSLPct < 0 || e.CustomSLPct > 20 {
		errs = append(errs, ValidationError{Field: field("custom_sl_pct"), Message: "must be in [0, 20]"})
	}
	if e.CustomTPPct < 0 || e.CustomTPPct > 50 {
		errs = append(errs, ValidationError{Field: field("custom_tp_pct"), Message: "must be in [0, 50]"})
	}

	for _, sig := range e.EnabledSignals {
		if !validSignals[sig] {
			errs = append(errs, ValidationError{Field: field("enabled_signals"), Message: fmt.Sprintf("unknown signal '%s'", sig)})
		}
	}

	if e.RSIOversold <= 0 || e.RSIOverbought >= 100 || e.RSIOversold >= e.RSIOverbought {
		errs = append(errs, ValidationError{
			Field:   field("rsi_oversold"),
			Message: fmt.Sprintf("rsi bands must satisfy 0 < oversold < overbought < 100, got %.1f / %.1f", e.RSIOversold, e.RSIOverbought),
		})
	}

	if e.MultiTimeframe.Enabled {
		if len(e.MultiTimeframe.ConfirmTimeframes) == 0 {
			errs = append(errs, ValidationError{Field: field("multi_timeframe.confirm_timeframes"), Message: "required when multi-timeframe is enabled"})
		}
		for _, tf := range e.MultiTimeframe.ConfirmTimeframes {
			if !tf.IsValid() {
				errs = append(errs, ValidationError{Field: field("multi_timeframe.confirm_timeframes"), Message: fmt.Sprintf("unknown timeframe '%s'", tf)})
			}
		}
		if e.MultiTimeframe.BonusWeight < 0 || e.MultiTimeframe.BonusWeight > 0.1 {
			errs = append(errs, ValidationError{Field: field("multi_timeframe.bonus_weight"), Message: "must be in [0, 0.1]"})
		}
	}

	if e.SymbolCooldown < 0 {
		errs = append(errs, ValidationError{Field: field("symbol_cooldown"), Message: "must not be negative"})
	}
	if e.GlobalCooldown < 0 {
		errs = append(errs, ValidationError{Field: field("global_cooldown"), Message: "must not be negative"})
	}
	if e.MaxConsecutiveSameDirection < 1 {
		errs = append(errs, ValidationError{Field: field("max_consecutive_same_direction"), Message: "must be at least 1"})
	}
	if e.MaxConsecutiveLosses < 1 {
		errs = append(errs, ValidationError{Field: field("max_consecutive_losses"), Message: "must be at least 1"})
	}
	if e.PauseAfterLosses < 0 {
		errs = append(errs, ValidationError{Field: field("pause_after_losses"), Message: "must not be negative"})
	}

	if e.RiskPerTradePct <= 0 || e.RiskPerTradePct > 10 {
		errs = append(errs, ValidationError{Field: field("risk_per_trade_pct"), Message: fmt.Sprintf("%.2f out of range (0, 10]", e.RiskPerTradePct)})
	}
	if e.MinRRR < 0 {
		errs = append(errs, ValidationError{Field: field("min_rrr"), Message: "must not be negative"})
	}
	if e.AnalysisInterval < 0 {
		errs = append(errs, ValidationError{Field: field("analysis_interval"), Message: "must not be negative"})
	}
	if e.CandleWindow < 60 {
		errs = append(errs, ValidationError{Field: field("candle_window"), Message: "must be at least 60 bars"})
	}

	return errs
}

// Validate checks a standalone engine config, as used for runtime
// updates arriving through the store.
func (e *EngineConfig) Validate() error {
	errs := e.validate("engine")
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateExchange() ValidationErrors {
	var errs ValidationErrors

	if !validExchange[c.Exchange.Mode] {
		errs = append(errs, ValidationError{Field: "exchange.mode", Message: fmt.Sprintf("invalid mode '%s' (must be paper or live)", c.Exchange.Mode)})
	}
	if c.Exchange.RequestTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "exchange.request_timeout", Message: "must be positive"})
	}
	if c.Exchange.RateLimitPerSec <= 0 {
		errs = append(errs, ValidationError{Field: "exchange.rate_limit_per_sec", Message: "must be positive"})
	}
	if c.Exchange.RateLimitBurst < 1 {
		errs = append(errs, ValidationError{Field: "exchange.rate_limit_burst", Message: "must be at least 1"})
	}
	if c.Exchange.SlippagePct < 0 || c.Exchange.SlippagePct > 1 {
		errs = append(errs, ValidationError{Field: "exchange.slippage_pct", Message: "must be in [0, 1]"})
	}
	if c.Exchange.TakerFeePct < 0 || c.Exchange.TakerFeePct > 1 {
		errs = append(errs, ValidationError{Field: "exchange.taker_fee_pct", Message: "must be in [0, 1]"})
	}
	if c.Exchange.Mode == "paper" && c.Exchange.PaperEquity <= 0 {
		errs = append(errs, ValidationError{Field: "exchange.paper_equity", Message: "must be positive in paper mode"})
	}

	return errs
}

func (c *Config) validateRedis() ValidationErrors {
	var errs ValidationErrors
	if !c.Redis.Enabled {
		return errs
	}

	if c.Redis.Host == "" {
		errs = append(errs, ValidationError{Field: "redis.host", Message: "host is required when redis is enabled"})
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, ValidationError{Field: "redis.port", Message: fmt.Sprintf("invalid port %d", c.Redis.Port)})
	}
	if c.Redis.DB < 0 || c.Redis.DB > 15 {
		errs = append(errs, ValidationError{Field: "redis.db", Message: fmt.Sprintf("invalid database number %d", c.Redis.DB)})
	}

	return errs
}

func (c *Config) validateNATS() ValidationErrors {
	var errs ValidationErrors
	if !c.NATS.Enabled {
		return errs
	}

	if c.NATS.URL == "" {
		errs = append(errs, ValidationError{Field: "nats.url", Message: "url is required when nats is enabled"})
	} else if !strings.HasPrefix(c.NATS.URL, "nats://") && !strings.HasPrefix(c.NATS.URL, "tls://") {
		errs = append(errs, ValidationError{Field: "nats.url", Message: "url must start with nats:// or tls://"})
	}
	if c.NATS.SubjectPrefix == "" {
		errs = append(errs, ValidationError{Field: "nats.subject_prefix", Message: "subject prefix is required when nats is enabled"})
	}

	return errs
}

func (c *Config) validateTelegram() ValidationErrors {
	var errs ValidationErrors
	if !c.Telegram.Enabled {
		return errs
	}

	if c.Telegram.Token == "" {
		errs = append(errs, ValidationError{Field: "telegram.token", Message: "bot token is required when telegram is enabled"})
	}
	if c.Telegram.ChatID == 0 {
		errs = append(errs, ValidationError{Field: "telegram.chat_id", Message: "chat id is required when telegram is enabled"})
	}

	return errs
}

func (c *Config) validateMetrics() ValidationErrors {
	var errs ValidationErrors
	if !c.Metrics.Enabled {
		return errs
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		errs = append(errs, ValidationError{Field: "metrics.port", Message: fmt.Sprintf("invalid port %d", c.Metrics.Port)})
	}

	return errs
}

func (c *Config) validateJournal() ValidationErrors {
	var errs ValidationErrors
	if !c.Journal.Enabled {
		return errs
	}

	if c.Journal.Host == "" {
		errs = append(errs, ValidationError{Field: "journal.host", Message: "host is required when journal is enabled"})
	}
	if c.Journal.Port < 1 || c.Journal.Port > 65535 {
		errs = append(errs, ValidationError{Field: "journal.port", Message: fmt.Sprintf("invalid port %d", c.Journal.Port)})
	}
	if c.Journal.User == "" {
		errs = append(errs, ValidationError{Field: "journal.user", Message: "user is required when journal is enabled"})
	}
	if c.Journal.Database == "" {
		errs = append(errs, ValidationError{Field: "journal.database", Message: "database name is required when journal is enabled"})
	}
	if c.Journal.PoolSize < 1 {
		errs = append(errs, ValidationError{Field: "journal.pool_size", Message: "must be at least 1"})
	}

	return errs
}
