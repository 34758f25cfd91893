package ports

import (
	"context"

	"cryptoTradeEngine/internal/domain"
)

// OrderSnapshot carries the freshly observed state of an order as reported
// by the status source. The tracker applies it to the local order handle.
type OrderSnapshot struct {
	Status       domain.OrderStatus
	Executed     float64 // Quantity filled so far
	AveragePrice float64 // Average fill price
	TotalTraded  float64 // Total amount traded (funds currency)
	FeesPaid     float64 // Fees charged so far (funds currency)

	// Partial-fill detail, reported by simulated sources only.
	PartialFillQuantity float64
	PartialFillPrice    float64
}

// OrderStatusSource defines the interface the tracking core uses to observe
// and manipulate orders on the exchange (or a simulation of one).
type OrderStatusSource interface {
	// FetchOrderStatus retrieves the current state of the given order.
	FetchOrderStatus(ctx context.Context, order *domain.Order) (OrderSnapshot, error)

	// Cancel requests cancellation of the given order on the exchange.
	Cancel(ctx context.Context, order *domain.Order) error

	// FillImmediately fills the order at the given candle's close price.
	// Simulation only; live sources return an error.
	FillImmediately(ctx context.Context, order *domain.Order, candle *domain.Candle) error
}

// BalanceRefresher is triggered after any quantity-changing status transition
// so account bookkeeping can catch up with the exchange.
type BalanceRefresher interface {
	RefreshBalances(ctx context.Context) error
}

// CandleSource supplies the latest candle observed for an instrument.
type CandleSource interface {
	LatestCandle() *domain.Candle
}
