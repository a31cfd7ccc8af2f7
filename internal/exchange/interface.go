// Package exchange contains the venue adapters: the live Binance
// futures client, the paper-trading simulator and the reliability
// decorator shared by both.
package exchange

import (
	"context"

	"github.com/ajitpratap0/kumotrade/internal/market"
)

// Client is the full venue interface the engine trades through. Both
// the live Binance client and the paper simulator implement it. Its
// market-data subset satisfies market.Source, so the same client backs
// the price fetcher.
type Client interface {
	// Market data.
	GetCandles(ctx context.Context, symbol string, tf market.Timeframe, startMs, endMs int64) ([]market.Candle, error)
	GetPrice(ctx context.Context, symbol string) (float64, error)
	GetAllMids(ctx context.Context) (map[string]float64, error)
	GetFundingRate(ctx context.Context, symbol string) (*FundingRate, error)

	// Account state.
	GetAccountBalance(ctx context.Context) (*Balance, error)
	GetPositions(ctx context.Context) ([]RawPosition, error)

	// Trading.
	PlaceOrderWithTPSL(ctx context.Context, req OrderRequest) (*OrderAck, error)
	ClosePosition(ctx context.Context, symbol string) (*CloseAck, error)
}

var _ market.Source = (Client)(nil)
