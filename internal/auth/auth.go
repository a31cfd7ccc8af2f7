// Package auth supplies venue credentials to the engine. Providers
// cover direct environment configuration and HashiCorp Vault; the
// engine only sees the Provider interface and refuses to start when
// the active provider is not ready or its connection test fails.
package auth

import (
	"context"
	"errors"
	"fmt"
)

// Credentials is the venue API key pair.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Probe verifies credentials end to end against the venue, typically
// by fetching the account balance. Wired by the host.
type Probe func(ctx context.Context) error

// Provider hands out credentials and answers readiness questions.
type Provider interface {
	// Credentials returns the key pair, fetching it if necessary.
	Credentials(ctx context.Context) (Credentials, error)
	// IsReady reports whether usable credentials are available.
	IsReady(ctx context.Context) bool
	// TestConnection exercises the credentials against the venue.
	TestConnection(ctx context.Context) error
	// Address identifies the trading account in logs and events.
	Address() string
	// BalanceAddress identifies the account whose balance backs
	// position sizing. Usually equal to Address.
	BalanceAddress() string
}

// AuthError marks credential retrieval or validation failures. The
// engine aborts start on it and never retries automatically.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("auth: %s", e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError wraps err as an auth failure with the given reason.
func NewAuthError(reason string, err error) error {
	return &AuthError{Reason: reason, Err: err}
}

// IsAuthError reports whether err is an auth failure.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// maskKey keeps the first and last four characters of an API key for
// log-safe identification.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
