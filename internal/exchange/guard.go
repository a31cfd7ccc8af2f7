package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/kumotrade/internal/market"
)

// GuardSettings tunes the reliability decorator around a venue client.
type GuardSettings struct {
	RequestTimeout      time.Duration
	RatePerSec          float64
	Burst               int
	MinRequests         uint32
	FailureRatio        float64
	OpenTimeout         time.Duration
	CountInterval       time.Duration
	HalfOpenMaxRequests uint32
}

// DefaultGuardSettings returns the production guard tuning.
func DefaultGuardSettings() GuardSettings {
	return GuardSettings{
		RequestTimeout:      10 * time.Second,
		RatePerSec:          10,
		Burst:               20,
		MinRequests:         5,
		FailureRatio:        0.6,
		OpenTimeout:         30 * time.Second,
		CountInterval:       60 * time.Second,
		HalfOpenMaxRequests: 2,
	}
}

// GuardedClient wraps a Client with a rate limiter, a per-request
// deadline and a circuit breaker. While the breaker is open every call
// fails fast with a retryable error, so the engine skips cycles
// instead of hammering a failing venue.
type GuardedClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
	logger  zerolog.Logger
}

// NewGuardedClient decorates inner with the guard. onStateChange, when
// non-nil, observes breaker transitions.
func NewGuardedClient(inner Client, settings GuardSettings, onStateChange func(from, to gobreaker.State)) *GuardedClient {
	if settings.RequestTimeout <= 0 {
		settings = DefaultGuardSettings()
	}

	logger := log.With().Str("component", "exchange_guard").Logger()

	g := &GuardedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(settings.RatePerSec), settings.Burst),
		timeout: settings.RequestTimeout,
		logger:  logger,
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "exchange",
		MaxRequests: settings.HalfOpenMaxRequests,
		Interval:    settings.CountInterval,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= settings.MinRequests && failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Exchange circuit breaker state changed")
			if onStateChange != nil {
				onStateChange(from, to)
			}
		},
	})

	return g
}

// State returns the current breaker state.
func (g *GuardedClient) State() gobreaker.State {
	return g.breaker.State()
}

func (g *GuardedClient) execute(ctx context.Context, op string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limiter: %w", op, err)
	}

	res, err := g.breaker.Execute(func() (interface{}, error) {
		opCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return fn(opCtx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, Retryable(fmt.Errorf("%s: exchange circuit open", op))
		}
		return nil, err
	}
	return res, nil
}

func (g *GuardedClient) GetCandles(ctx context.Context, symbol string, tf market.Timeframe, startMs, endMs int64) ([]market.Candle, error) {
	res, err := g.execute(ctx, "GetCandles", func(ctx context.Context) (interface{}, error) {
		return g.inner.GetCandles(ctx, symbol, tf, startMs, endMs)
	})
	if err != nil {
		return nil, err
	}
	return res.([]market.Candle), nil
}

func (g *GuardedClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	res, err := g.execute(ctx, "GetPrice", func(ctx context.Context) (interface{}, error) {
		return g.inner.GetPrice(ctx, symbol)
	})
	if err != nil {
		return 0, err
	}
	return res.(float64), nil
}

func (g *GuardedClient) GetAllMids(ctx context.Context) (map[string]float64, error) {
	res, err := g.execute(ctx, "GetAllMids", func(ctx context.Context) (interface{}, error) {
		return g.inner.GetAllMids(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.(map[string]float64), nil
}

func (g *GuardedClient) GetFundingRate(ctx context.Context, symbol string) (*FundingRate, error) {
	res, err := g.execute(ctx, "GetFundingRate", func(ctx context.Context) (interface{}, error) {
		return g.inner.GetFundingRate(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	return res.(*FundingRate), nil
}

func (g *GuardedClient) GetAccountBalance(ctx context.Context) (*Balance, error) {
	res, err := g.execute(ctx, "GetAccountBalance", func(ctx context.Context) (interface{}, error) {
		return g.inner.GetAccountBalance(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.(*Balance), nil
}

func (g *GuardedClient) GetPositions(ctx context.Context) ([]RawPosition, error) {
	res, err := g.execute(ctx, "GetPositions", func(ctx context.Context) (interface{}, error) {
		return g.inner.GetPositions(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.([]RawPosition), nil
}

func (g *GuardedClient) PlaceOrderWithTPSL(ctx context.Context, req OrderRequest) (*OrderAck, error) {
	res, err := g.execute(ctx, "PlaceOrderWithTPSL", func(ctx context.Context) (interface{}, error) {
		return g.inner.PlaceOrderWithTPSL(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return res.(*OrderAck), nil
}

func (g *GuardedClient) ClosePosition(ctx context.Context, symbol string) (*CloseAck, error) {
	res, err := g.execute(ctx, "ClosePosition", func(ctx context.Context) (interface{}, error) {
		return g.inner.ClosePosition(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	return res.(*CloseAck), nil
}

var _ Client = (*GuardedClient)(nil)
