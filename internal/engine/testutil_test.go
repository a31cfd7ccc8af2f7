package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ajitpratap0/kumotrade/internal/auth"
	"github.com/ajitpratap0/kumotrade/internal/config"
	"github.com/ajitpratap0/kumotrade/internal/events"
	"github.com/ajitpratap0/kumotrade/internal/exchange"
	"github.com/ajitpratap0/kumotrade/internal/grader"
	"github.com/ajitpratap0/kumotrade/internal/indicators"
	"github.com/ajitpratap0/kumotrade/internal/market"
	"github.com/ajitpratap0/kumotrade/internal/risk"
	"github.com/ajitpratap0/kumotrade/internal/strategy"
)

// fakeVenue is a scriptable exchange.Client. Zero-value fields mean
// "succeed with nothing"; tests set exactly the surface they need.
type fakeVenue struct {
	mu sync.Mutex

	candles   map[string][]market.Candle
	candleErr map[string]error
	prices    map[string]float64
	priceErr  error
	funding   map[string]float64

	balance    exchange.Balance
	balanceErr error

	positions []exchange.RawPosition
	// positionsSeq, when non-empty, is consumed one snapshot per
	// GetPositions call before falling back to positions.
	positionsSeq [][]exchange.RawPosition
	positionsErr error

	placeErr error
	dropStop bool
	closeErr error

	orders        []exchange.OrderRequest
	closes        []string
	balanceCalls  int
	positionCalls int
}

var _ exchange.Client = (*fakeVenue)(nil)

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		candles:   make(map[string][]market.Candle),
		candleErr: make(map[string]error),
		prices:    make(map[string]float64),
		funding:   make(map[string]float64),
		balance:   exchange.Balance{TotalEquity: 1000, AvailableBalance: 1000},
	}
}

func (v *fakeVenue) GetCandles(_ context.Context, symbol string, _ market.Timeframe, _, _ int64) ([]market.Candle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.candleErr[symbol]; err != nil {
		return nil, err
	}
	window, ok := v.candles[symbol]
	if !ok {
		return nil, fmt.Errorf("no candles scripted for %s", symbol)
	}
	out := make([]market.Candle, len(window))
	copy(out, window)
	return out, nil
}

func (v *fakeVenue) GetPrice(_ context.Context, symbol string) (float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.priceErr != nil {
		return 0, v.priceErr
	}
	price, ok := v.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price scripted for %s", symbol)
	}
	return price, nil
}

func (v *fakeVenue) GetAllMids(_ context.Context) (map[string]float64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]float64, len(v.prices))
	for sym, p := range v.prices {
		out[sym] = p
	}
	return out, nil
}

func (v *fakeVenue) GetFundingRate(_ context.Context, symbol string) (*exchange.FundingRate, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return &exchange.FundingRate{Symbol: symbol, Rate: v.funding[symbol]}, nil
}

func (v *fakeVenue) GetAccountBalance(_ context.Context) (*exchange.Balance, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balanceCalls++
	if v.balanceErr != nil {
		return nil, v.balanceErr
	}
	bal := v.balance
	return &bal, nil
}

func (v *fakeVenue) GetPositions(_ context.Context) ([]exchange.RawPosition, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.positionCalls++
	if v.positionsErr != nil {
		return nil, v.positionsErr
	}
	src := v.positions
	if len(v.positionsSeq) > 0 {
		src = v.positionsSeq[0]
		v.positionsSeq = v.positionsSeq[1:]
	}
	out := make([]exchange.RawPosition, len(src))
	copy(out, src)
	return out, nil
}

func (v *fakeVenue) PlaceOrderWithTPSL(_ context.Context, req exchange.OrderRequest) (*exchange.OrderAck, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.placeErr != nil {
		return nil, v.placeErr
	}
	v.orders = append(v.orders, req)
	return &exchange.OrderAck{
		OrderID:       fmt.Sprintf("ord-%d", len(v.orders)),
		Symbol:        req.Symbol,
		Direction:     req.Direction,
		FilledSize:    req.Size,
		AvgPrice:      v.prices[req.Symbol],
		StopLossSet:   !v.dropStop,
		TakeProfitSet: true,
		Timestamp:     time.Now(),
	}, nil
}

func (v *fakeVenue) ClosePosition(_ context.Context, symbol string) (*exchange.CloseAck, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closeErr != nil {
		return nil, v.closeErr
	}
	v.closes = append(v.closes, symbol)
	return &exchange.CloseAck{Symbol: symbol, Timestamp: time.Now()}, nil
}

func (v *fakeVenue) setPositions(raws ...exchange.RawPosition) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.positions = raws
}

func (v *fakeVenue) queuePositions(snapshots ...[]exchange.RawPosition) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.positionsSeq = append(v.positionsSeq, snapshots...)
}

func (v *fakeVenue) ordersPlaced() []exchange.OrderRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]exchange.OrderRequest, len(v.orders))
	copy(out, v.orders)
	return out
}

func (v *fakeVenue) positionReads() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.positionCalls
}

func (v *fakeVenue) closedSymbols() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]string, len(v.closes))
	copy(out, v.closes)
	return out
}

func rawPosition(symbol string, size, entry float64) exchange.RawPosition {
	return exchange.RawPosition{Symbol: symbol, Size: size, EntryPrice: entry}
}

func fptr(v float64) *float64 { return &v }

// fakeAuth satisfies auth.Provider with fixed answers.
type fakeAuth struct {
	ready   bool
	connErr error
}

var _ auth.Provider = (*fakeAuth)(nil)

func (a *fakeAuth) Credentials(context.Context) (auth.Credentials, error) {
	return auth.Credentials{APIKey: "test-key", APISecret: "test-secret"}, nil
}

func (a *fakeAuth) IsReady(context.Context) bool { return a.ready }

func (a *fakeAuth) TestConnection(context.Context) error { return a.connErr }

func (a *fakeAuth) Address() string { return "0xtest" }

func (a *fakeAuth) BalanceAddress() string { return "0xtest" }

// fakeStrategy replays one scripted signal for every window, stamped
// with the requested timeframe.
type fakeStrategy struct {
	name string
	sig  *strategy.RawSignal
	err  error
}

var _ strategy.Strategy = (*fakeStrategy)(nil)

func (s *fakeStrategy) Name() string {
	if s.name == "" {
		return "scripted"
	}
	return s.name
}

func (s *fakeStrategy) Analyze(_ []market.Candle, tf market.Timeframe, _ *indicators.Bundle, _ *config.EngineConfig) (*strategy.RawSignal, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.sig == nil {
		return &strategy.RawSignal{Strategy: s.Name(), Timeframe: tf}, nil
	}
	out := *s.sig
	out.Strategy = s.Name()
	out.Timeframe = tf
	return &out, nil
}

func longSignal(score, confluence int) *strategy.RawSignal {
	return &strategy.RawSignal{
		Direction:  market.DirectionLong,
		Score:      score,
		AbsScore:   score,
		Confluence: confluence,
		Reasons:    []string{"scripted long"},
	}
}

func shortSignal(score, confluence int) *strategy.RawSignal {
	return &strategy.RawSignal{
		Direction:  market.DirectionShort,
		Score:      -score,
		AbsScore:   score,
		Confluence: confluence,
		Reasons:    []string{"scripted short"},
	}
}

// fakeCorrelation answers CanTrade with a fixed decision.
type fakeCorrelation struct {
	mu       sync.Mutex
	decision risk.Decision
	calls    int
}

var _ risk.CorrelationManager = (*fakeCorrelation)(nil)

func allowAll() *fakeCorrelation {
	return &fakeCorrelation{decision: risk.Decision{Allowed: true}}
}

func denyAll(reasons ...string) *fakeCorrelation {
	return &fakeCorrelation{decision: risk.Decision{Allowed: false, Reasons: reasons}}
}

func (f *fakeCorrelation) CanTrade(string, []exchange.Position) risk.Decision {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.decision
}

// closeRecorder captures position-close callbacks.
type closeRecorder struct {
	mu     sync.Mutex
	events []closeEvent
}

type closeEvent struct {
	symbol string
	pnl    float64
	reason string
}

func (r *closeRecorder) fn() CloseFunc {
	return func(symbol string, pnl float64, reason string, _ *Position) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, closeEvent{symbol: symbol, pnl: pnl, reason: reason})
	}
}

func (r *closeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *closeRecorder) last() closeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return closeEvent{}
	}
	return r.events[len(r.events)-1]
}

// Sawtooth window geometry. Closes alternate between sawBase and
// sawBase+sawStep with flat lows and alternating highs, which pins the
// indicator reads: RSI hovers at 50, ADX saturates, ATR sits in the
// normal volatility band, volume holds at its average and flow never
// diverges from price. Signals scripted over this window pass every
// grading filter.
const (
	sawBase   = 50000.0
	sawStep   = 150.0
	sawWick   = 100.0
	sawVolume = 1200.0
)

func sawtoothWindow(n int, tf market.Timeframe) []market.Candle {
	step := tf.DurationMs()
	start := time.Now().Add(-time.Duration(n) * tf.Duration()).UnixMilli()
	out := make([]market.Candle, n)
	for i := range out {
		c := market.Candle{
			Timestamp: start + int64(i)*step,
			Low:       sawBase - sawWick,
			Volume:    sawVolume,
		}
		switch {
		case i == 0:
			c.Open, c.Close, c.High = sawBase, sawBase, sawBase
		case i%2 == 1:
			c.Open, c.Close, c.High = sawBase, sawBase+sawStep, sawBase+sawStep+sawWick
		default:
			c.Open, c.Close, c.High = sawBase+sawStep, sawBase, sawBase+sawStep
		}
		out[i] = c
	}
	return out
}

func testConfig(symbols ...string) config.EngineConfig {
	cfg := config.DefaultEngineConfig()
	if len(symbols) > 0 {
		cfg.Symbols = symbols
	}
	return cfg
}

// testOpportunity builds a gate-ready A-grade candidate without
// running the analysis pipeline.
func testOpportunity(symbol string, dir market.Direction, price float64) *Opportunity {
	preset, err := config.PresetFor(market.Timeframe15m)
	if err != nil {
		panic(err)
	}
	raw := strategy.RawSignal{
		Strategy:   "scripted",
		Timeframe:  market.Timeframe15m,
		Direction:  dir,
		Score:      5,
		AbsScore:   5,
		Confluence: 3,
	}
	if dir == market.DirectionShort {
		raw.Score = -5
	}
	return &Opportunity{
		Symbol:    symbol,
		Timeframe: market.Timeframe15m,
		Preset:    preset,
		Signal: &grader.GradedSignal{
			RawSignal:      raw,
			Grade:          grader.GradeA,
			QualityScore:   81,
			WinProbability: 0.92,
			Tradeable:      true,
		},
		Price: price,
	}
}

// newTestGate wires a gate over the fake venue with an hour-long poll
// interval so the position loop stays out of the way.
func newTestGate(venue *fakeVenue, corr risk.CorrelationManager) (*TradeGate, *tradeState, *PositionManager) {
	state := newTradeState()
	fetcher := market.NewPriceFetcher(venue, market.DefaultFetcherConfig())
	hub := events.NewHub()
	pm := NewPositionManager(venue, fetcher, hub, nil, time.Hour)
	gate := NewTradeGate(venue, risk.NewCalculator(), corr, pm, state, hub, nil, nil)
	return gate, state, pm
}
