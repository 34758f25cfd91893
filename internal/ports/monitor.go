package ports

import (
	"time"

	"cryptoTradeEngine/internal/domain"
)

// TradeView is the read-only surface of a trade aggregate exposed to
// monitors and lifecycle policies.
type TradeView interface {
	ID() int64
	Side() domain.TradeSide
	Symbol() string
	IsPlaceholder() bool
	IsFinalized() bool
	Stopped() bool
	ExitReason() string

	// Statistics over the current position.
	AveragePrice() float64
	Quantity() float64
	LastClosingPrice() float64
	PriceChangePct() float64
	MaxPrice() float64
	MinPrice() float64
	MaxChange() float64
	MinChange() float64
	Ticks() int
	TradeDuration() time.Duration
}

// TradeMonitor observes the lifecycle of a trade. Monitors are invoked once
// per registered monitor per relevant event, in registration order.
type TradeMonitor interface {
	// Bought is invoked when a BUY order is registered into the trade.
	Bought(trade TradeView, order *domain.Order)
	// Sold is invoked when a SELL order is registered into the trade.
	Sold(trade TradeView, order *domain.Order)
	// HighestProfit is invoked when the best favorable excursion improves.
	HighestProfit(trade TradeView, changePct float64)
	// WorstLoss is invoked when the worst adverse excursion deepens.
	WorstLoss(trade TradeView, changePct float64)
	// HandleStop returns a non-empty exit reason to stop the trade. Once a
	// monitor stops a trade, no further stop evaluation happens for it.
	HandleStop(trade TradeView) string
	// AllowExit reports whether the trade may be exited now.
	AllowExit(trade TradeView) bool
	// AllowTradeSwitch reports whether funds held by this trade may be
	// reallocated to trade exitSymbol.
	AllowTradeSwitch(trade TradeView, exitSymbol string, candle *domain.Candle, candleTicker string) bool
}
