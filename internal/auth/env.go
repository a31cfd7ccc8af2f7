package auth

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment variables read by EnvProvider. The BINANCE_* pair is
// accepted as a fallback so existing venue tooling keeps working.
const (
	envAPIKey    = "KUMOTRADE_API_KEY"
	envAPISecret = "KUMOTRADE_API_SECRET"
	envLabel     = "KUMOTRADE_ACCOUNT_LABEL"

	envFallbackAPIKey    = "BINANCE_API_KEY"
	envFallbackAPISecret = "BINANCE_SECRET_KEY"
)

// EnvProvider reads credentials from the process environment once at
// construction.
type EnvProvider struct {
	creds  Credentials
	label  string
	probe  Probe
	logger zerolog.Logger
}

// NewEnvProvider captures credentials from the environment. probe may
// be nil when no venue round trip is possible.
func NewEnvProvider(probe Probe) *EnvProvider {
	creds := Credentials{
		APIKey:    firstEnv(envAPIKey, envFallbackAPIKey),
		APISecret: firstEnv(envAPISecret, envFallbackAPISecret),
	}

	p := &EnvProvider{
		creds:  creds,
		label:  os.Getenv(envLabel),
		probe:  probe,
		logger: log.With().Str("component", "auth").Logger(),
	}

	if creds.APIKey == "" {
		p.logger.Warn().Msg("No API key in environment, provider will report not ready")
	} else {
		p.logger.Info().Str("account", p.Address()).Msg("Credentials loaded from environment")
	}
	return p
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func (p *EnvProvider) Credentials(_ context.Context) (Credentials, error) {
	if p.creds.APIKey == "" || p.creds.APISecret == "" {
		return Credentials{}, NewAuthError("credentials not configured in environment", nil)
	}
	return p.creds, nil
}

func (p *EnvProvider) IsReady(_ context.Context) bool {
	return p.creds.APIKey != "" && p.creds.APISecret != ""
}

func (p *EnvProvider) TestConnection(ctx context.Context) error {
	if !p.IsReady(ctx) {
		return NewAuthError("credentials not configured in environment", nil)
	}
	if p.probe == nil {
		return nil
	}
	if err := p.probe(ctx); err != nil {
		return NewAuthError("connection test failed", err)
	}
	return nil
}

func (p *EnvProvider) Address() string {
	if p.label != "" {
		return p.label
	}
	return maskKey(p.creds.APIKey)
}

func (p *EnvProvider) BalanceAddress() string {
	return p.Address()
}

// StaticProvider carries fixed credentials. Paper mode uses it so the
// engine's start checks pass without real keys.
type StaticProvider struct {
	creds Credentials
	label string
	probe Probe
}

// NewStaticProvider builds a provider around fixed credentials.
func NewStaticProvider(creds Credentials, label string, probe Probe) *StaticProvider {
	return &StaticProvider{creds: creds, label: label, probe: probe}
}

// NewPaperProvider returns the provider used in paper mode. It is
// always ready and its connection test only probes market data.
func NewPaperProvider(probe Probe) *StaticProvider {
	return NewStaticProvider(Credentials{APIKey: "paper", APISecret: "paper"}, "paper", probe)
}

func (p *StaticProvider) Credentials(_ context.Context) (Credentials, error) {
	return p.creds, nil
}

func (p *StaticProvider) IsReady(_ context.Context) bool {
	return p.creds.APIKey != "" && p.creds.APISecret != ""
}

func (p *StaticProvider) TestConnection(ctx context.Context) error {
	if p.probe == nil {
		return nil
	}
	if err := p.probe(ctx); err != nil {
		return NewAuthError("connection test failed", err)
	}
	return nil
}

func (p *StaticProvider) Address() string {
	if p.label != "" {
		return p.label
	}
	return maskKey(p.creds.APIKey)
}

func (p *StaticProvider) BalanceAddress() string {
	return p.Address()
}

var (
	_ Provider = (*EnvProvider)(nil)
	_ Provider = (*StaticProvider)(nil)
)
