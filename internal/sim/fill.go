// Package sim provides the simulated order-status source: an in-process
// fill emulator driven by candle data, substituting for the exchange when
// backtesting or dry-running.
package sim

import (
	"context"
	"sync"

	"cryptoTradeEngine/internal/domain"
	"cryptoTradeEngine/internal/ports"
)

// Feed is a CandleSource fed programmatically, one candle at a time.
type Feed struct {
	mu     sync.RWMutex
	latest *domain.Candle
}

// NewFeed creates an empty candle feed.
func NewFeed() *Feed {
	return &Feed{}
}

// Push makes candle the latest one observed.
func (f *Feed) Push(candle *domain.Candle) {
	f.mu.Lock()
	f.latest = candle
	f.mu.Unlock()
}

// LatestCandle returns the most recently pushed candle.
func (f *Feed) LatestCandle() *domain.Candle {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest
}

// FillEmulator implements ports.OrderStatusSource against a candle feed:
// market orders fill at the latest close, limit orders fill when the candle
// range crosses their price, stop orders fill once triggered.
type FillEmulator struct {
	candles    ports.CandleSource
	feeRatePct float64
}

// NewFillEmulator creates a fill emulator charging the given fee percentage
// per fill.
func NewFillEmulator(candles ports.CandleSource, feeRatePct float64) *FillEmulator {
	return &FillEmulator{candles: candles, feeRatePct: feeRatePct}
}

func snapshotOf(order *domain.Order) ports.OrderSnapshot {
	return ports.OrderSnapshot{
		Status:       order.Status,
		Executed:     order.Executed,
		AveragePrice: order.AveragePrice,
		TotalTraded:  order.TotalTraded,
		FeesPaid:     order.FeesPaid,
	}
}

// FetchOrderStatus emulates one observation of the order against the latest
// candle.
func (e *FillEmulator) FetchOrderStatus(ctx context.Context, order *domain.Order) (ports.OrderSnapshot, error) {
	snap := snapshotOf(order)
	if order.IsFinalized() {
		return snap, nil
	}
	candle := e.candles.LatestCandle()
	if candle == nil {
		return snap, nil
	}

	price, filled := e.fillPrice(order, candle)
	if !filled {
		return snap, nil
	}
	return e.fill(snap, order, price), nil
}

// fillPrice decides whether the candle fills the order and at what price.
func (e *FillEmulator) fillPrice(order *domain.Order, candle *domain.Candle) (float64, bool) {
	if order.TriggerPrice != 0 {
		if order.IsBuy() && candle.High >= order.TriggerPrice {
			return order.TriggerPrice, true
		}
		if order.IsSell() && candle.Low <= order.TriggerPrice {
			return order.TriggerPrice, true
		}
		return 0, false
	}
	if order.Price != 0 {
		if order.IsBuy() && candle.Low <= order.Price {
			return order.Price, true
		}
		if order.IsSell() && candle.High >= order.Price {
			return order.Price, true
		}
		return 0, false
	}
	// Market order.
	return candle.Close, true
}

func (e *FillEmulator) fill(snap ports.OrderSnapshot, order *domain.Order, price float64) ports.OrderSnapshot {
	fillQty := order.Quantity - order.Executed
	if fillQty <= 0 {
		return snap
	}
	traded := fillQty * price
	snap.Status = domain.StatusFilled
	snap.Executed = order.Quantity
	snap.TotalTraded = order.TotalTraded + traded
	snap.FeesPaid = order.FeesPaid + traded*e.feeRatePct/100.0
	snap.AveragePrice = snap.TotalTraded / snap.Executed
	snap.PartialFillQuantity = fillQty
	snap.PartialFillPrice = price
	return snap
}

// Cancel is a no-op: there is no exchange side to cancel against, the
// tracker's local finalization is authoritative in simulation.
func (e *FillEmulator) Cancel(ctx context.Context, order *domain.Order) error {
	return nil
}

// FillImmediately fills the remaining quantity of the order in place at the
// candle's close price, used when liquidating a trade.
func (e *FillEmulator) FillImmediately(ctx context.Context, order *domain.Order, candle *domain.Candle) error {
	if order.IsFinalized() {
		return nil
	}
	price := order.Price
	if candle != nil {
		price = candle.Close
	}
	snap := e.fill(snapshotOf(order), order, price)
	order.Status = snap.Status
	order.Executed = snap.Executed
	order.TotalTraded = snap.TotalTraded
	order.FeesPaid = snap.FeesPaid
	order.AveragePrice = snap.AveragePrice
	return nil
}

// StaticBalances is a BalanceRefresher that has nothing to refresh.
type StaticBalances struct{}

// RefreshBalances implements ports.BalanceRefresher.
func (StaticBalances) RefreshBalances(ctx context.Context) error {
	return nil
}
