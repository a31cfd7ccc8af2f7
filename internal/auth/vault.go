package auth

import (
	"context"
	"fmt"
	"os"
	"sync"

	vault "github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// VaultSettings configures the Vault-backed provider.
type VaultSettings struct {
	Address    string // Vault server address
	Token      string // falls back to VAULT_TOKEN, then VAULT_DEV_TOKEN
	MountPath  string // KV v2 mount (default "secret")
	SecretPath string // base path, e.g. "kumotrade/production"
	Label      string // optional account label for logs
}

// VaultProvider fetches the venue key pair from a Vault KV v2 secret
// at <mount>/data/<secretPath>/exchange with keys api_key and
// secret_key. The pair is cached after the first successful read.
type VaultProvider struct {
	client   *vault.Client
	settings VaultSettings
	probe    Probe
	logger   zerolog.Logger

	mu     sync.Mutex
	cached *Credentials
}

// NewVaultProvider builds the provider and authenticates with a token.
func NewVaultProvider(settings VaultSettings, probe Probe) (*VaultProvider, error) {
	if settings.Address == "" {
		settings.Address = os.Getenv("VAULT_ADDR")
	}
	if settings.MountPath == "" {
		settings.MountPath = "secret"
	}
	if settings.SecretPath == "" {
		settings.SecretPath = "kumotrade"
	}

	vaultCfg := vault.DefaultConfig()
	if settings.Address != "" {
		vaultCfg.Address = settings.Address
	}

	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, NewAuthError("failed to create vault client", err)
	}

	token := settings.Token
	if token == "" {
		token = os.Getenv("VAULT_TOKEN")
	}
	if token == "" {
		token = os.Getenv("VAULT_DEV_TOKEN")
	}
	if token == "" {
		return nil, NewAuthError("vault token is required (set VAULT_TOKEN or VAULT_DEV_TOKEN)", nil)
	}
	client.SetToken(token)

	logger := log.With().Str("component", "auth").Logger()
	logger.Info().
		Str("vault_addr", vaultCfg.Address).
		Str("mount_path", settings.MountPath).
		Str("secret_path", settings.SecretPath).
		Msg("Vault credential provider initialized")

	return &VaultProvider{
		client:   client,
		settings: settings,
		probe:    probe,
		logger:   logger,
	}, nil
}

// Credentials reads the key pair from Vault, serving the cached copy
// on subsequent calls.
func (p *VaultProvider) Credentials(ctx context.Context) (Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != nil {
		return *p.cached, nil
	}

	path := fmt.Sprintf("%s/data/%s/exchange", p.settings.MountPath, p.settings.SecretPath)
	secret, err := p.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return Credentials{}, NewAuthError("failed to read exchange secret from vault", err)
	}
	if secret == nil {
		return Credentials{}, NewAuthError(fmt.Sprintf("no secret at vault path %s", path), nil)
	}

	// KV v2 nests the payload under "data"; KV v1 returns it directly.
	data := secret.Data
	if nested, ok := secret.Data["data"].(map[string]interface{}); ok {
		data = nested
	}

	creds := Credentials{}
	if v, ok := data["api_key"].(string); ok {
		creds.APIKey = v
	}
	if v, ok := data["secret_key"].(string); ok {
		creds.APISecret = v
	}
	if creds.APIKey == "" || creds.APISecret == "" {
		return Credentials{}, NewAuthError(fmt.Sprintf("vault secret at %s is missing api_key or secret_key", path), nil)
	}

	p.cached = &creds
	p.logger.Info().Str("account", p.addressLocked()).Msg("Exchange credentials loaded from Vault")
	return creds, nil
}

func (p *VaultProvider) IsReady(ctx context.Context) bool {
	_, err := p.Credentials(ctx)
	return err == nil
}

func (p *VaultProvider) TestConnection(ctx context.Context) error {
	if _, err := p.Credentials(ctx); err != nil {
		return err
	}
	if p.probe == nil {
		return nil
	}
	if err := p.probe(ctx); err != nil {
		return NewAuthError("connection test failed", err)
	}
	return nil
}

func (p *VaultProvider) Address() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.addressLocked()
}

func (p *VaultProvider) BalanceAddress() string {
	return p.Address()
}

func (p *VaultProvider) addressLocked() string {
	if p.settings.Label != "" {
		return p.settings.Label
	}
	if p.cached != nil {
		return maskKey(p.cached.APIKey)
	}
	return "vault"
}

var _ Provider = (*VaultProvider)(nil)
