package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/kumotrade/internal/exchange"
)

// Decision is the correlation gate verdict for one candidate trade.
type Decision struct {
	Allowed bool
	Reasons []string
}

// CorrelationManager guards portfolio-level exposure. The trade gate
// consults it after the per-symbol checks pass.
type CorrelationManager interface {
	CanTrade(symbol string, positions []exchange.Position) Decision
}

// ClusterLimits tunes the default correlation policy.
type ClusterLimits struct {
	// MaxPerCluster caps open positions sharing an asset cluster.
	MaxPerCluster int
	// MaxDailyDrawdownPct blocks new trades once equity has fallen
	// this far from the day-start mark. 0 disables the check.
	MaxDailyDrawdownPct float64
}

// DefaultClusterLimits returns the production policy.
func DefaultClusterLimits() ClusterLimits {
	return ClusterLimits{
		MaxPerCluster:       2,
		MaxDailyDrawdownPct: 5.0,
	}
}

// defaultClusters groups symbols that tend to move together. Symbols
// outside the table form their own singleton cluster.
var defaultClusters = map[string][]string{
	"btc":  {"BTC"},
	"eth":  {"ETH"},
	"l1":   {"SOL", "AVAX", "ADA", "DOT", "NEAR", "APT", "SUI", "TON"},
	"l2":   {"ARB", "OP", "MATIC", "STRK"},
	"meme": {"DOGE", "SHIB", "PEPE", "WIF", "BONK"},
	"defi": {"UNI", "AAVE", "LINK", "MKR", "CRV", "LDO"},
}

// ClusterManager is the default CorrelationManager: per-cluster
// position caps plus a daily drawdown stop anchored at the equity the
// engine saw when the day started.
type ClusterManager struct {
	limits    ClusterLimits
	clusterOf map[string]string
	logger    zerolog.Logger

	mu             sync.Mutex
	dayStartEquity float64
	currentEquity  float64
	seededAt       time.Time
}

// NewClusterManager builds the manager with the default cluster table.
func NewClusterManager(limits ClusterLimits) *ClusterManager {
	if limits.MaxPerCluster <= 0 {
		limits.MaxPerCluster = DefaultClusterLimits().MaxPerCluster
	}

	index := make(map[string]string)
	for name, symbols := range defaultClusters {
		for _, s := range symbols {
			index[s] = name
		}
	}

	return &ClusterManager{
		limits:    limits,
		clusterOf: index,
		logger:    log.With().Str("component", "correlation").Logger(),
	}
}

func (m *ClusterManager) cluster(symbol string) string {
	if name, ok := m.clusterOf[symbol]; ok {
		return name
	}
	return symbol
}

// CanTrade checks cluster exposure and the daily drawdown stop.
func (m *ClusterManager) CanTrade(symbol string, positions []exchange.Position) Decision {
	var reasons []string

	cluster := m.cluster(symbol)
	count := 0
	for _, pos := range positions {
		if m.cluster(pos.Symbol) == cluster {
			count++
		}
	}
	if count >= m.limits.MaxPerCluster {
		reasons = append(reasons, fmt.Sprintf(
			"cluster %s already holds %d position(s), max %d", cluster, count, m.limits.MaxPerCluster))
	}

	m.mu.Lock()
	dayStart, current := m.dayStartEquity, m.currentEquity
	m.mu.Unlock()

	if m.limits.MaxDailyDrawdownPct > 0 && dayStart > 0 && current > 0 {
		drawdownPct := (dayStart - current) / dayStart * 100
		if drawdownPct >= m.limits.MaxDailyDrawdownPct {
			reasons = append(reasons, fmt.Sprintf(
				"daily drawdown %.1f%% at or above cap %.1f%%", drawdownPct, m.limits.MaxDailyDrawdownPct))
		}
	}

	if len(reasons) > 0 {
		m.logger.Info().
			Str("symbol", symbol).
			Strs("reasons", reasons).
			Msg("Correlation gate rejected candidate")
		return Decision{Allowed: false, Reasons: reasons}
	}
	return Decision{Allowed: true}
}

// SeedDayStart anchors the drawdown reference, typically at engine
// start.
func (m *ClusterManager) SeedDayStart(equity float64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dayStartEquity = equity
	m.currentEquity = equity
	m.seededAt = now

	m.logger.Info().
		Float64("equity", equity).
		Msg("Day-start equity seeded")
}

// UpdateEquity refreshes the live equity mark and rolls the day-start
// anchor over at the UTC day boundary.
func (m *ClusterManager) UpdateEquity(equity float64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.currentEquity = equity

	if !m.seededAt.IsZero() {
		prevY, prevM, prevD := m.seededAt.UTC().Date()
		y, mo, d := now.UTC().Date()
		if y != prevY || mo != prevM || d != prevD {
			m.dayStartEquity = equity
			m.seededAt = now
			m.logger.Info().
				Float64("equity", equity).
				Msg("Day rollover, drawdown anchor reset")
		}
	}
}

// DayStartEquity exposes the current anchor for logs and tests.
func (m *ClusterManager) DayStartEquity() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dayStartEquity
}

var _ CorrelationManager = (*ClusterManager)(nil)
