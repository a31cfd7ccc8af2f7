// Package alerts delivers operator notifications for conditions the
// engine cannot resolve on its own: loss pauses, failed executions, an
// open circuit breaker and positions left without protection.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Severity classifies an alert.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert is one operator notification.
type Alert struct {
	Title     string
	Message   string
	Severity  Severity
	Timestamp time.Time
	Metadata  map[string]interface{}
}

// Alerter delivers alerts to one destination.
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// DefaultCooldown is how long a repeated alert stays suppressed.
const DefaultCooldown = 5 * time.Minute

// Manager fans alerts out to every configured sink. Repeats of the same
// severity and title within the cooldown are dropped so a flapping
// condition cannot flood the operator.
type Manager struct {
	alerters []Alerter
	cooldown time.Duration
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewManager creates a manager over the given sinks. A cooldown of zero
// or less uses DefaultCooldown.
func NewManager(cooldown time.Duration, alerters ...Alerter) *Manager {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Manager{
		alerters: alerters,
		cooldown: cooldown,
		logger:   log.With().Str("component", "alerts").Logger(),
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// Send delivers the alert to every sink. Delivery continues past a
// failing sink and the last error is returned. A nil manager ignores
// alerts entirely.
func (m *Manager) Send(ctx context.Context, alert Alert) error {
	if m == nil {
		return nil
	}

	if alert.Timestamp.IsZero() {
		alert.Timestamp = m.now()
	}

	if m.suppressed(alert) {
		m.logger.Debug().
			Str("title", alert.Title).
			Msg("Alert suppressed by cooldown")
		return nil
	}

	var lastErr error
	for _, alerter := range m.alerters {
		if err := alerter.Send(ctx, alert); err != nil {
			m.logger.Error().
				Err(err).
				Str("title", alert.Title).
				Msg("Failed to send alert")
			lastErr = err
		}
	}
	return lastErr
}

// suppressed reports whether an alert with the same severity and title
// went out within the cooldown. The window is anchored at the last
// delivered alert, so a steady flap alerts once per window.
func (m *Manager) suppressed(alert Alert) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := string(alert.Severity) + ":" + alert.Title
	if last, ok := m.lastSent[key]; ok && m.now().Sub(last) < m.cooldown {
		return true
	}
	m.lastSent[key] = m.now()
	return false
}

// SendInfo sends an informational alert.
func (m *Manager) SendInfo(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{Title: title, Message: message, Severity: SeverityInfo, Metadata: metadata})
}

// SendWarning sends a warning alert.
func (m *Manager) SendWarning(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{Title: title, Message: message, Severity: SeverityWarning, Metadata: metadata})
}

// SendCritical sends a critical alert.
func (m *Manager) SendCritical(ctx context.Context, title, message string, metadata map[string]interface{}) error {
	return m.Send(ctx, Alert{Title: title, Message: message, Severity: SeverityCritical, Metadata: metadata})
}

// LossPause reports that consecutive losses paused new entries.
func (m *Manager) LossPause(ctx context.Context, losses int, until time.Time) error {
	return m.SendWarning(ctx, "Trading paused",
		fmt.Sprintf("%d consecutive losses, new entries paused until %s", losses, until.Format("15:04:05")),
		map[string]interface{}{
			"consecutive_losses": losses,
			"paused_until":       until.Format(time.RFC3339),
		})
}

// ExecutionError reports an order that failed to execute.
func (m *Manager) ExecutionError(ctx context.Context, symbol string, err error) error {
	return m.SendCritical(ctx, "Order execution failed",
		fmt.Sprintf("Order for %s failed: %v", symbol, err),
		map[string]interface{}{
			"symbol": symbol,
			"error":  err.Error(),
		})
}

// BreakerOpen reports the exchange circuit breaker tripping open.
func (m *Manager) BreakerOpen(ctx context.Context, name string) error {
	return m.SendWarning(ctx, "Circuit breaker open",
		fmt.Sprintf("Breaker %s is open, exchange calls are failing fast", name),
		map[string]interface{}{"breaker": name})
}

// FatalState reports a position detected without protective orders.
func (m *Manager) FatalState(ctx context.Context, symbol, detail string) error {
	return m.SendCritical(ctx, "Unprotected position",
		fmt.Sprintf("%s: %s", symbol, detail),
		map[string]interface{}{"symbol": symbol})
}

// LogAlerter writes alerts to the structured log so every alert is
// visible even when no external sink is configured.
type LogAlerter struct {
	logger zerolog.Logger
}

// NewLogAlerter creates a log-backed sink.
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{logger: log.With().Str("component", "alerts").Logger()}
}

// Send logs the alert at a level matching its severity.
func (l *LogAlerter) Send(ctx context.Context, alert Alert) error {
	event := l.logger.Info()
	switch alert.Severity {
	case SeverityCritical:
		event = l.logger.Error()
	case SeverityWarning:
		event = l.logger.Warn()
	}

	for key, value := range alert.Metadata {
		event = event.Interface(key, value)
	}

	event.
		Str("title", alert.Title).
		Str("severity", string(alert.Severity)).
		Msg(alert.Message)
	return nil
}
