package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/kumotrade/internal/market"
)

// BinanceConfig contains configuration for the Binance futures client.
type BinanceConfig struct {
	APIKey    string
	SecretKey string
	Testnet   bool
	Quote     string
	Retry     RetryConfig
}

// BinanceClient implements Client against Binance USDT-M futures.
// Engine symbols are bare coins ("BTC"); the client appends the quote
// asset on the wire and strips it on the way back.
type BinanceClient struct {
	client *futures.Client
	quote  string
	retry  RetryConfig
	logger zerolog.Logger

	precMu    sync.RWMutex
	precision map[string]symbolPrecision
}

type symbolPrecision struct {
	qty   int
	price int
}

// NewBinanceClient creates a Binance futures client. Without API keys
// only the public market-data endpoints work, which is all paper mode
// needs.
func NewBinanceClient(cfg BinanceConfig) *BinanceClient {
	if cfg.Quote == "" {
		cfg.Quote = "USDT"
	}
	if cfg.Retry.InitialBackoff == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	if cfg.Testnet {
		futures.UseTestnet = true
		log.Info().Msg("Binance futures client initialized (TESTNET mode)")
	} else if cfg.APIKey != "" {
		log.Warn().Msg("Binance futures client initialized (LIVE TRADING mode)")
	}

	return &BinanceClient{
		client:    futures.NewClient(cfg.APIKey, cfg.SecretKey),
		quote:     cfg.Quote,
		retry:     cfg.Retry,
		logger:    log.With().Str("component", "binance_client").Logger(),
		precision: make(map[string]symbolPrecision),
	}
}

func (b *BinanceClient) pair(symbol string) string {
	if strings.HasSuffix(symbol, b.quote) {
		return symbol
	}
	return symbol + b.quote
}

func (b *BinanceClient) coin(pair string) string {
	return strings.TrimSuffix(pair, b.quote)
}

// GetCandles fetches klines for [startMs, endMs].
func (b *BinanceClient) GetCandles(ctx context.Context, symbol string, tf market.Timeframe, startMs, endMs int64) ([]market.Candle, error) {
	if !tf.IsValid() {
		return nil, fmt.Errorf("unknown timeframe: %q", tf)
	}
	svc := b.client.NewKlinesService().
		Symbol(b.pair(symbol)).
		Interval(tf.String())
	if startMs > 0 {
		svc = svc.StartTime(startMs)
	}
	if endMs > 0 {
		svc = svc.EndTime(endMs)
	}
	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", symbol, tf, err)
	}

	candles := make([]market.Candle, 0, len(klines))
	for _, k := range klines {
		open, err1 := strconv.ParseFloat(k.Open, 64)
		high, err2 := strconv.ParseFloat(k.High, 64)
		low, err3 := strconv.ParseFloat(k.Low, 64)
		closePx, err4 := strconv.ParseFloat(k.Close, 64)
		volume, err5 := strconv.ParseFloat(k.Volume, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			b.logger.Warn().
				Str("symbol", symbol).
				Int64("open_time", k.OpenTime).
				Msg("Skipping kline with unparseable fields")
			continue
		}
		candles = append(candles, market.Candle{
			Timestamp: k.OpenTime,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    volume,
		})
	}
	return candles, nil
}

// GetPrice fetches the current price for one symbol.
func (b *BinanceClient) GetPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := b.client.NewListPricesService().Symbol(b.pair(symbol)).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance price %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("binance price %s: empty response", symbol)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance price %s: parse %q: %w", symbol, prices[0].Price, err)
	}
	return price, nil
}

// GetAllMids fetches last prices for every listed perp, keyed by bare
// coin.
func (b *BinanceClient) GetAllMids(ctx context.Context) (map[string]float64, error) {
	prices, err := b.client.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance mids: %w", err)
	}
	mids := make(map[string]float64, len(prices))
	for _, p := range prices {
		if !strings.HasSuffix(p.Symbol, b.quote) {
			continue
		}
		price, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			continue
		}
		mids[b.coin(p.Symbol)] = price
	}
	return mids, nil
}

// GetFundingRate fetches the current funding rate via the premium
// index.
func (b *BinanceClient) GetFundingRate(ctx context.Context, symbol string) (*FundingRate, error) {
	indexes, err := b.client.NewPremiumIndexService().Symbol(b.pair(symbol)).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance funding %s: %w", symbol, err)
	}
	if len(indexes) == 0 {
		return nil, fmt.Errorf("binance funding %s: empty response", symbol)
	}
	rate, err := strconv.ParseFloat(indexes[0].LastFundingRate, 64)
	if err != nil {
		return nil, fmt.Errorf("binance funding %s: parse %q: %w", symbol, indexes[0].LastFundingRate, err)
	}
	return &FundingRate{
		Symbol:          symbol,
		Rate:            rate,
		NextFundingTime: indexes[0].NextFundingTime,
	}, nil
}

// GetAccountBalance fetches the futures account snapshot.
func (b *BinanceClient) GetAccountBalance(ctx context.Context) (*Balance, error) {
	var account *futures.Account
	err := WithRetry(ctx, b.retry, func() error {
		var opErr error
		account, opErr = b.client.NewGetAccountService().Do(ctx)
		return opErr
	})
	if err != nil {
		return nil, fmt.Errorf("binance account: %w", err)
	}

	equity, _ := strconv.ParseFloat(account.TotalMarginBalance, 64)
	available, _ := strconv.ParseFloat(account.AvailableBalance, 64)
	margin, _ := strconv.ParseFloat(account.TotalInitialMargin, 64)
	if equity <= 0 {
		return nil, fmt.Errorf("binance account: non-positive equity %q", account.TotalMarginBalance)
	}

	return &Balance{
		TotalEquity:      equity,
		AvailableBalance: available,
		MarginUsed:       margin,
	}, nil
}

// GetPositions fetches open positions. Flat symbols are dropped.
func (b *BinanceClient) GetPositions(ctx context.Context) ([]RawPosition, error) {
	var risks []*futures.PositionRisk
	err := WithRetry(ctx, b.retry, func() error {
		var opErr error
		risks, opErr = b.client.NewGetPositionRiskService().Do(ctx)
		return opErr
	})
	if err != nil {
		return nil, fmt.Errorf("binance positions: %w", err)
	}

	positions := make([]RawPosition, 0, len(risks))
	for _, r := range risks {
		amt, err := strconv.ParseFloat(r.PositionAmt, 64)
		if err != nil || amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
		pnl, _ := strconv.ParseFloat(r.UnRealizedProfit, 64)
		margin, _ := strconv.ParseFloat(r.IsolatedMargin, 64)
		leverage, _ := strconv.Atoi(r.Leverage)

		positions = append(positions, RawPosition{
			Symbol:        b.coin(r.Symbol),
			Size:          amt,
			EntryPrice:    entry,
			UnrealizedPnl: pnl,
			LiquidationPx: r.LiquidationPrice,
			Leverage:      leverage,
			MarginUsed:    margin,
		})
	}
	return positions, nil
}

// PlaceOrderWithTPSL opens a market position and brackets it with
// reduce-only stop and take-profit orders. The entry is atomic; a
// failed protective order is reported through the ack flags so the
// caller can flatten an unprotected position.
func (b *BinanceClient) PlaceOrderWithTPSL(ctx context.Context, req OrderRequest) (*OrderAck, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	pair := b.pair(req.Symbol)

	if req.Leverage > 0 {
		if _, err := b.client.NewChangeLeverageService().Symbol(pair).Leverage(req.Leverage).Do(ctx); err != nil {
			b.logger.Warn().
				Err(err).
				Str("symbol", req.Symbol).
				Int("leverage", req.Leverage).
				Msg("Failed to set leverage, using current setting")
		}
	}

	entrySide := futures.SideTypeBuy
	exitSide := futures.SideTypeSell
	if req.Direction == market.DirectionShort {
		entrySide = futures.SideTypeSell
		exitSide = futures.SideTypeBuy
	}

	qtyStr := b.formatQty(ctx, pair, req.Size)
	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = uuid.New().String()
	}

	var entry *futures.CreateOrderResponse
	err := WithRetry(ctx, b.retry, func() error {
		var opErr error
		entry, opErr = b.client.NewCreateOrderService().
			Symbol(pair).
			Side(entrySide).
			Type(futures.OrderTypeMarket).
			Quantity(qtyStr).
			NewClientOrderID(clientID).
			NewOrderResponseType(futures.NewOrderRespTypeRESULT).
			Do(ctx)
		return opErr
	})
	if err != nil {
		return nil, fmt.Errorf("binance entry order %s: %w", req.Symbol, err)
	}

	avgPrice, _ := strconv.ParseFloat(entry.AvgPrice, 64)
	filled, _ := strconv.ParseFloat(entry.ExecutedQuantity, 64)
	if avgPrice == 0 {
		if price, priceErr := b.GetPrice(ctx, req.Symbol); priceErr == nil {
			avgPrice = price
		}
	}
	if filled == 0 {
		filled = req.Size
	}

	ack := &OrderAck{
		OrderID:    strconv.FormatInt(entry.OrderID, 10),
		Symbol:     req.Symbol,
		Direction:  req.Direction,
		FilledSize: filled,
		AvgPrice:   avgPrice,
		Timestamp:  time.Now(),
	}

	// Protective orders close the whole position at the trigger price.
	slErr := WithRetry(ctx, b.retry, func() error {
		_, opErr := b.client.NewCreateOrderService().
			Symbol(pair).
			Side(exitSide).
			Type(futures.OrderTypeStopMarket).
			StopPrice(b.formatPrice(ctx, pair, req.StopLoss)).
			ClosePosition(true).
			WorkingType(futures.WorkingTypeMarkPrice).
			PriceProtect(true).
			Do(ctx)
		return opErr
	})
	if slErr != nil {
		b.logger.Error().
			Err(slErr).
			Str("symbol", req.Symbol).
			Float64("stop_loss", req.StopLoss).
			Msg("Failed to place stop loss, position is unprotected")
	}
	ack.StopLossSet = slErr == nil

	tpErr := WithRetry(ctx, b.retry, func() error {
		_, opErr := b.client.NewCreateOrderService().
			Symbol(pair).
			Side(exitSide).
			Type(futures.OrderTypeTakeProfitMarket).
			StopPrice(b.formatPrice(ctx, pair, req.TakeProfit)).
			ClosePosition(true).
			WorkingType(futures.WorkingTypeMarkPrice).
			PriceProtect(true).
			Do(ctx)
		return opErr
	})
	if tpErr != nil {
		b.logger.Error().
			Err(tpErr).
			Str("symbol", req.Symbol).
			Float64("take_profit", req.TakeProfit).
			Msg("Failed to place take profit")
	}
	ack.TakeProfitSet = tpErr == nil

	b.logger.Info().
		Str("symbol", req.Symbol).
		Str("direction", req.Direction.String()).
		Float64("size", ack.FilledSize).
		Float64("avg_price", ack.AvgPrice).
		Bool("sl_set", ack.StopLossSet).
		Bool("tp_set", ack.TakeProfitSet).
		Msg("Order placed")

	return ack, nil
}

// ClosePosition flattens the position with a reduce-only market order
// and cancels the remaining bracket orders.
func (b *BinanceClient) ClosePosition(ctx context.Context, symbol string) (*CloseAck, error) {
	pair := b.pair(symbol)

	risks, err := b.client.NewGetPositionRiskService().Symbol(pair).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance close %s: position lookup: %w", symbol, err)
	}

	var amt, pnl float64
	for _, r := range risks {
		v, parseErr := strconv.ParseFloat(r.PositionAmt, 64)
		if parseErr != nil || v == 0 {
			continue
		}
		amt = v
		pnl, _ = strconv.ParseFloat(r.UnRealizedProfit, 64)
		break
	}
	if amt == 0 {
		return nil, fmt.Errorf("binance close %s: no open position", symbol)
	}

	side := futures.SideTypeSell
	size := amt
	if amt < 0 {
		side = futures.SideTypeBuy
		size = -amt
	}

	var resp *futures.CreateOrderResponse
	err = WithRetry(ctx, b.retry, func() error {
		var opErr error
		resp, opErr = b.client.NewCreateOrderService().
			Symbol(pair).
			Side(side).
			Type(futures.OrderTypeMarket).
			Quantity(b.formatQty(ctx, pair, size)).
			ReduceOnly(true).
			NewOrderResponseType(futures.NewOrderRespTypeRESULT).
			Do(ctx)
		return opErr
	})
	if err != nil {
		return nil, fmt.Errorf("binance close %s: %w", symbol, err)
	}

	if cancelErr := b.client.NewCancelAllOpenOrdersService().Symbol(pair).Do(ctx); cancelErr != nil {
		b.logger.Warn().
			Err(cancelErr).
			Str("symbol", symbol).
			Msg("Failed to cancel remaining bracket orders")
	}

	exitPrice, _ := strconv.ParseFloat(resp.AvgPrice, 64)

	b.logger.Info().
		Str("symbol", symbol).
		Float64("size", size).
		Float64("exit_price", exitPrice).
		Float64("realized_pnl", pnl).
		Msg("Position closed")

	return &CloseAck{
		Symbol:      symbol,
		ClosedSize:  size,
		ExitPrice:   exitPrice,
		RealizedPnL: pnl,
		Timestamp:   time.Now(),
	}, nil
}

// loadPrecision fetches per-symbol quantity and price precision from
// exchange info. Failures fall back to conservative defaults and are
// retried on the next call.
func (b *BinanceClient) loadPrecision(ctx context.Context, pair string) symbolPrecision {
	b.precMu.RLock()
	prec, ok := b.precision[pair]
	b.precMu.RUnlock()
	if ok {
		return prec
	}

	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Exchange info unavailable, using default precision")
		return symbolPrecision{qty: 3, price: 2}
	}

	b.precMu.Lock()
	defer b.precMu.Unlock()
	for _, s := range info.Symbols {
		b.precision[s.Symbol] = symbolPrecision{qty: s.QuantityPrecision, price: s.PricePrecision}
	}
	if prec, ok = b.precision[pair]; ok {
		return prec
	}
	return symbolPrecision{qty: 3, price: 2}
}

func (b *BinanceClient) formatQty(ctx context.Context, pair string, qty float64) string {
	return strconv.FormatFloat(qty, 'f', b.loadPrecision(ctx, pair).qty, 64)
}

func (b *BinanceClient) formatPrice(ctx context.Context, pair string, price float64) string {
	return strconv.FormatFloat(price, 'f', b.loadPrecision(ctx, pair).price, 64)
}
