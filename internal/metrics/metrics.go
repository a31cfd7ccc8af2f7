// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Exchange error categories. Label values stay bounded no matter what
// text the venue puts in an error.
const (
	ExchangeErrorTimeout     = "timeout"
	ExchangeErrorRateLimit   = "rate_limit"
	ExchangeErrorAuth        = "authentication"
	ExchangeErrorNetwork     = "network"
	ExchangeErrorInvalidReq  = "invalid_request"
	ExchangeErrorServerError = "server_error"
	ExchangeErrorOther       = "other"
)

// NormalizeExchangeError maps an arbitrary venue error to one of the
// bounded categories above.
func NormalizeExchangeError(err error) string {
	if err == nil {
		return ""
	}
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
		return ExchangeErrorTimeout
	case strings.Contains(errStr, "rate") || strings.Contains(errStr, "429"):
		return ExchangeErrorRateLimit
	case strings.Contains(errStr, "auth") || strings.Contains(errStr, "401") || strings.Contains(errStr, "403"):
		return ExchangeErrorAuth
	case strings.Contains(errStr, "network") || strings.Contains(errStr, "connection"):
		return ExchangeErrorNetwork
	case strings.Contains(errStr, "400") || strings.Contains(errStr, "invalid"):
		return ExchangeErrorInvalidReq
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") || strings.Contains(errStr, "503"):
		return ExchangeErrorServerError
	default:
		return ExchangeErrorOther
	}
}

// EngineMetrics holds every metric the trading loop updates.
type EngineMetrics struct {
	CyclesTotal       prometheus.Counter
	CycleDuration     prometheus.Histogram
	SignalsTotal      *prometheus.CounterVec
	GateRejections    *prometheus.CounterVec
	TradesTotal       *prometheus.CounterVec
	OpenPositions     prometheus.Gauge
	WinProbability    prometheus.Histogram
	ConsecutiveLosses prometheus.Gauge
	ExchangeErrors    *prometheus.CounterVec
	EquityUSD         prometheus.Gauge
}

var (
	engineOnce    sync.Once
	engineMetrics *EngineMetrics
)

// Engine returns the process-wide engine metrics, registering them on
// first use. Every caller gets the same handle, so components can ask
// for it independently without double registration.
func Engine() *EngineMetrics {
	engineOnce.Do(func() {
		engineMetrics = &EngineMetrics{
			CyclesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "kumotrade_cycles_total",
				Help: "Total number of analysis cycles run",
			}),
			CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "kumotrade_cycle_duration_seconds",
				Help:    "Analysis cycle duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			}),
			SignalsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "kumotrade_signals_total",
				Help: "Graded signals by grade",
			}, []string{"grade"}),
			GateRejections: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "kumotrade_gate_rejections_total",
				Help: "Trade gate rejections by stage",
			}, []string{"reason"}),
			TradesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "kumotrade_trades_total",
				Help: "Executed trades by direction",
			}, []string{"direction"}),
			OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "kumotrade_open_positions",
				Help: "Number of currently open positions",
			}),
			WinProbability: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "kumotrade_win_probability",
				Help:    "Estimated win probability of executed trades",
				Buckets: []float64{0.5, 0.55, 0.6, 0.65, 0.7, 0.75, 0.8, 0.85, 0.9, 0.92},
			}),
			ConsecutiveLosses: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "kumotrade_consecutive_losses",
				Help: "Current consecutive loss streak",
			}),
			ExchangeErrors: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "kumotrade_exchange_errors_total",
				Help: "Exchange call failures by category",
			}, []string{"category"}),
			EquityUSD: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "kumotrade_equity_usd",
				Help: "Last observed account equity in USD",
			}),
		}
	})
	return engineMetrics
}
