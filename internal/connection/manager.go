// Package connection watches the exchange link. It probes the venue's
// API on a ticker, counts consecutive failures and asks the owner to
// rebuild streaming state once the failure threshold is crossed.
package connection

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	defaultInterval  = 30 * time.Second
	defaultThreshold = 3
	checkTimeout     = 10 * time.Second
	reconnectTimeout = 30 * time.Second
)

// Callbacks wires the manager to its owner. APIHealthCheck probes the
// venue; WSReconnect is invoked after the failure threshold so the
// owner can rebuild its streams and caches.
type Callbacks struct {
	APIHealthCheck func(ctx context.Context) error
	WSReconnect    func(ctx context.Context) error
}

// Status is a point-in-time snapshot of the connection.
type Status struct {
	Healthy             bool
	ConsecutiveFailures int
	LastCheck           time.Time
	LastSuccess         time.Time
	LastError           string
	Reconnects          int
}

// Manager runs the periodic health check loop.
type Manager struct {
	interval  time.Duration
	threshold int
	callbacks Callbacks
	logger    zerolog.Logger

	mu     sync.Mutex
	status Status

	running atomic.Bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewManager creates a manager probing at the given interval and firing
// the reconnect callback after threshold consecutive failures. Zero or
// negative values fall back to 30s and 3.
func NewManager(interval time.Duration, threshold int) *Manager {
	if interval <= 0 {
		interval = defaultInterval
	}
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Manager{
		interval:  interval,
		threshold: threshold,
		logger:    log.With().Str("component", "connection").Logger(),
	}
}

// SetCallbacks installs the owner's callbacks. Must be called before
// Start.
func (m *Manager) SetCallbacks(cb Callbacks) {
	m.callbacks = cb
}

// Start launches the health check loop. The first probe fires
// immediately, then once per interval until Stop or ctx cancellation.
func (m *Manager) Start(ctx context.Context) error {
	if m.callbacks.APIHealthCheck == nil {
		return fmt.Errorf("api health check callback is not set")
	}
	if !m.running.CompareAndSwap(false, true) {
		return fmt.Errorf("connection manager already running")
	}

	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})

	go m.loop(ctx)

	m.logger.Info().
		Dur("interval", m.interval).
		Int("failure_threshold", m.threshold).
		Msg("Connection manager started")
	return nil
}

// Stop halts the loop and waits for it to exit. Safe to call twice.
func (m *Manager) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	close(m.stopCh)
	<-m.done
	m.logger.Info().Msg("Connection manager stopped")
}

// GetStatus returns a copy of the current connection status.
func (m *Manager) GetStatus() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx)

	for {
		select {
		case <-ticker.C:
			m.check(ctx)
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) check(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	err := m.callbacks.APIHealthCheck(checkCtx)
	cancel()

	now := time.Now()

	if err == nil {
		m.mu.Lock()
		recovered := !m.status.Healthy && m.status.ConsecutiveFailures > 0
		m.status.Healthy = true
		m.status.ConsecutiveFailures = 0
		m.status.LastCheck = now
		m.status.LastSuccess = now
		m.status.LastError = ""
		m.mu.Unlock()

		if recovered {
			m.logger.Info().Msg("API connection recovered")
		}
		return
	}

	m.mu.Lock()
	m.status.Healthy = false
	m.status.ConsecutiveFailures++
	m.status.LastCheck = now
	m.status.LastError = err.Error()
	failures := m.status.ConsecutiveFailures
	m.mu.Unlock()

	m.logger.Warn().
		Err(err).
		Int("consecutive_failures", failures).
		Msg("API health check failed")

	if failures%m.threshold == 0 && m.callbacks.WSReconnect != nil {
		m.reconnect(ctx)
	}
}

// reconnect asks the owner to rebuild its streams. Success clears the
// failure count; the healthy flag stays down until a probe passes.
func (m *Manager) reconnect(ctx context.Context) {
	m.logger.Info().Msg("Reconnecting exchange streams")

	rcCtx, cancel := context.WithTimeout(ctx, reconnectTimeout)
	err := m.callbacks.WSReconnect(rcCtx)
	cancel()

	m.mu.Lock()
	m.status.Reconnects++
	if err == nil {
		m.status.ConsecutiveFailures = 0
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error().Err(err).Msg("Reconnect failed")
		return
	}
	m.logger.Info().Msg("Reconnect complete")
}
