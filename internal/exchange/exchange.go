package exchange

import (
	"context"

	"bitmex-trader/internal/core"
)

// Exchange is the connector surface a trading strategy or UI consumes. A
// second exchange's connector implements the same interface.
type Exchange interface {
	Name() string
	Start(ctx context.Context) error
	Close() error
	GetContracts(ctx context.Context) (map[string]core.Contract, error)
	GetBalances(ctx context.Context) (map[string]core.Balance, error)
	GetCandles(ctx context.Context, contract core.Contract, timeframe string) ([]core.Candle, error)
	PlaceOrder(ctx context.Context, req core.OrderRequest) (core.Order, error)
	CancelOrder(ctx context.Context, orderID string) (core.Order, error)
	OrderStatus(ctx context.Context, contract core.Contract, orderID string) (core.Order, error)
	Quote(symbol string) (core.Quote, bool)
}
