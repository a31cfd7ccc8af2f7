package market

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Source is the slice of the exchange client the fetcher needs. Any
// implementation of the full exchange interface satisfies it.
type Source interface {
	GetCandles(ctx context.Context, symbol string, tf Timeframe, startMs, endMs int64) ([]Candle, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetAllMids(ctx context.Context) (map[string]float64, error)
}

// FetcherConfig tunes cache behaviour.
type FetcherConfig struct {
	PriceTTL  time.Duration
	CandleTTL time.Duration
	// MaxWindow caps the number of candles requested upstream in one call.
	MaxWindow int
	// WindowSlack is the extra bars requested beyond the caller's limit so
	// a partially-formed head bar cannot leave the window short.
	WindowSlack int
}

// DefaultFetcherConfig returns the production cache tuning.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		PriceTTL:    5 * time.Second,
		CandleTTL:   60 * time.Second,
		MaxWindow:   500,
		WindowSlack: 5,
	}
}

type candleKey struct {
	symbol string
	tf     Timeframe
}

type candleEntry struct {
	candles   []Candle
	fetchedAt time.Time
}

type priceEntry struct {
	price     float64
	fetchedAt time.Time
}

type midsEntry struct {
	mids      map[string]float64
	fetchedAt time.Time
}

// FetcherStats is a snapshot of cache hit/miss counters.
type FetcherStats struct {
	PriceHits    uint64
	PriceMisses  uint64
	CandleHits   uint64
	CandleMisses uint64
	StaleServes  uint64
}

// PriceFetcher caches candles and mid prices in front of a Source.
// Price entries live for PriceTTL (default 5s), candle windows for
// CandleTTL (default 60s). On upstream failure a stale-but-present
// entry is served with a warning; with no cache the failure surfaces
// as a DataError.
type PriceFetcher struct {
	source Source
	cfg    FetcherConfig
	logger zerolog.Logger

	mu      sync.RWMutex
	prices  map[string]priceEntry
	candles map[candleKey]candleEntry
	mids    *midsEntry

	group singleflight.Group

	priceHits    atomic.Uint64
	priceMisses  atomic.Uint64
	candleHits   atomic.Uint64
	candleMisses atomic.Uint64
	staleServes  atomic.Uint64
}

// NewPriceFetcher creates a fetcher over the given source.
func NewPriceFetcher(source Source, cfg FetcherConfig) *PriceFetcher {
	if cfg.PriceTTL <= 0 {
		cfg.PriceTTL = DefaultFetcherConfig().PriceTTL
	}
	if cfg.CandleTTL <= 0 {
		cfg.CandleTTL = DefaultFetcherConfig().CandleTTL
	}
	if cfg.MaxWindow <= 0 {
		cfg.MaxWindow = DefaultFetcherConfig().MaxWindow
	}
	return &PriceFetcher{
		source:  source,
		cfg:     cfg,
		logger:  log.With().Str("component", "price_fetcher").Logger(),
		prices:  make(map[string]priceEntry),
		candles: make(map[candleKey]candleEntry),
	}
}

// GetPrice returns the current mid price for a symbol, cached for
// PriceTTL.
func (f *PriceFetcher) GetPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.RLock()
	entry, ok := f.prices[symbol]
	f.mu.RUnlock()

	if ok && time.Since(entry.fetchedAt) < f.cfg.PriceTTL {
		f.priceHits.Add(1)
		return entry.price, nil
	}
	f.priceMisses.Add(1)

	v, err, _ := f.group.Do("price:"+symbol, func() (interface{}, error) {
		price, err := f.source.GetPrice(ctx, symbol)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.prices[symbol] = priceEntry{price: price, fetchedAt: time.Now()}
		f.mu.Unlock()
		return price, nil
	})
	if err != nil {
		if ok {
			f.staleServes.Add(1)
			f.logger.Warn().
				Err(err).
				Str("symbol", symbol).
				Dur("age", time.Since(entry.fetchedAt)).
				Msg("Price fetch failed, serving stale cache")
			return entry.price, nil
		}
		return 0, &DataError{Op: "GetPrice", Symbol: symbol, Msg: "no cached price", Err: err}
	}
	return v.(float64), nil
}

// GetCandles returns the last limit candles for (symbol, tf), refreshing
// the cached window when stale or smaller than requested.
func (f *PriceFetcher) GetCandles(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Candle, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("candle limit must be positive, got %d", limit)
	}
	if limit > f.cfg.MaxWindow {
		limit = f.cfg.MaxWindow
	}
	key := candleKey{symbol: symbol, tf: tf}

	f.mu.RLock()
	entry, ok := f.candles[key]
	f.mu.RUnlock()

	if ok && time.Since(entry.fetchedAt) < f.cfg.CandleTTL && len(entry.candles) >= limit {
		f.candleHits.Add(1)
		return lastN(entry.candles, limit), nil
	}
	f.candleMisses.Add(1)

	v, err, _ := f.group.Do(fmt.Sprintf("candles:%s:%s", symbol, tf), func() (interface{}, error) {
		endMs := time.Now().UnixMilli()
		startMs := endMs - int64(limit+f.cfg.WindowSlack)*tf.DurationMs()
		candles, err := f.source.GetCandles(ctx, symbol, tf, startMs, endMs)
		if err != nil {
			return nil, err
		}
		if err := ValidateWindow(candles); err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.candles[key] = candleEntry{candles: candles, fetchedAt: time.Now()}
		f.mu.Unlock()
		return candles, nil
	})
	if err != nil {
		if ok && len(entry.candles) > 0 {
			f.staleServes.Add(1)
			f.logger.Warn().
				Err(err).
				Str("symbol", symbol).
				Str("timeframe", tf.String()).
				Int("cached", len(entry.candles)).
				Msg("Candle fetch failed, serving stale cache")
			return lastN(entry.candles, limit), nil
		}
		return nil, &DataError{Op: "GetCandles", Symbol: symbol, Msg: fmt.Sprintf("no cached window for %s", tf), Err: err}
	}

	candles := v.([]Candle)
	if len(candles) < limit {
		f.logger.Debug().
			Str("symbol", symbol).
			Str("timeframe", tf.String()).
			Int("want", limit).
			Int("got", len(candles)).
			Msg("Upstream returned short candle window")
	}
	return lastN(candles, limit), nil
}

// GetAllMids returns the mid-price map for all symbols, cached with the
// price TTL.
func (f *PriceFetcher) GetAllMids(ctx context.Context) (map[string]float64, error) {
	f.mu.RLock()
	entry := f.mids
	f.mu.RUnlock()

	if entry != nil && time.Since(entry.fetchedAt) < f.cfg.PriceTTL {
		f.priceHits.Add(1)
		return copyMids(entry.mids), nil
	}
	f.priceMisses.Add(1)

	v, err, _ := f.group.Do("mids", func() (interface{}, error) {
		mids, err := f.source.GetAllMids(ctx)
		if err != nil {
			return nil, err
		}
		f.mu.Lock()
		f.mids = &midsEntry{mids: mids, fetchedAt: time.Now()}
		f.mu.Unlock()
		return mids, nil
	})
	if err != nil {
		if entry != nil {
			f.staleServes.Add(1)
			f.logger.Warn().Err(err).Msg("Mid fetch failed, serving stale cache")
			return copyMids(entry.mids), nil
		}
		return nil, &DataError{Op: "GetAllMids", Symbol: "*", Msg: "no cached mids", Err: err}
	}
	return copyMids(v.(map[string]float64)), nil
}

// Invalidate drops all cached entries for a symbol. Used after order
// fills so the next poll sees fresh data.
func (f *PriceFetcher) Invalidate(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.prices, symbol)
	for key := range f.candles {
		if key.symbol == symbol {
			delete(f.candles, key)
		}
	}
}

// Stats returns a snapshot of the hit/miss counters.
func (f *PriceFetcher) Stats() FetcherStats {
	return FetcherStats{
		PriceHits:    f.priceHits.Load(),
		PriceMisses:  f.priceMisses.Load(),
		CandleHits:   f.candleHits.Load(),
		CandleMisses: f.candleMisses.Load(),
		StaleServes:  f.staleServes.Load(),
	}
}

func lastN(candles []Candle, n int) []Candle {
	if len(candles) <= n {
		out := make([]Candle, len(candles))
		copy(out, candles)
		return out
	}
	out := make([]Candle, n)
	copy(out, candles[len(candles)-n:])
	return out
}

func copyMids(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
