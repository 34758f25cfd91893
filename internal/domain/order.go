package domain

import (
	"fmt"
	"time"
)

// TradeRef is implemented by the trade aggregate owning an order. It is
// declared here so the order model does not depend on the tracking package.
type TradeRef interface {
	ID() int64
	Side() TradeSide
}

// Order is a mutable handle for an exchange order. Identity is the exchange
// order ID; status and fill quantities are updated in place as new statuses
// are observed. The tracking core never changes identity.
type Order struct {
	ID            int64     // Exchange's order ID
	ClientOrderID string    // User-defined order ID
	Symbol        string    // Trading pair (e.g., "ADABTC")
	AssetSymbol   string    // Asset leg of the pair (e.g., "ADA")
	FundsSymbol   string    // Funds leg of the pair (e.g., "BTC")
	Side          OrderSide // BUY or SELL
	TradeSide     TradeSide // LONG or SHORT affinity
	Type          string    // Order type (e.g., MARKET, LIMIT, STOP_MARKET)
	Status        OrderStatus
	Price         float64   // Limit price (0 for market orders)
	TriggerPrice  float64   // Trigger price for stop orders (0 otherwise)
	Quantity      float64   // Original quantity requested
	Executed      float64   // Quantity filled so far
	AveragePrice  float64   // Average fill price
	TotalTraded   float64   // Total amount traded (funds currency)
	FeesPaid      float64   // Fees charged so far (funds currency)
	Time          time.Time // Submission time
	Active        bool      // False while a stop order is resting untriggered

	// Parent links an attached order (e.g. a protective stop submitted
	// alongside an entry) back to its primary order.
	Parent      *Order
	Attachments []*Order

	// Trade is set when the order is registered into a trade aggregate.
	Trade TradeRef

	// Partial-fill detail reported by the simulated fill source; zero when
	// running live.
	PartialFillQuantity float64
	PartialFillPrice    float64
}

// IsBuy reports whether this is a BUY order.
func (o *Order) IsBuy() bool { return o.Side == Buy }

// IsSell reports whether this is a SELL order.
func (o *Order) IsSell() bool { return o.Side == Sell }

// IsCancelled reports whether the order reached CANCELLED.
func (o *Order) IsCancelled() bool { return o.Status == StatusCancelled }

// IsFinalized reports whether the order reached a terminal status.
func (o *Order) IsFinalized() bool { return o.Status.IsTerminal() }

// Cancel marks the order CANCELLED locally. Terminal orders are untouched.
func (o *Order) Cancel() {
	if !o.Status.IsTerminal() {
		o.Status = StatusCancelled
	}
}

// Attach registers att as an attached order of this one.
func (o *Order) Attach(att *Order) {
	att.Parent = o
	o.Attachments = append(o.Attachments, att)
}

// Group returns the attachments of this order's group: the parent's
// attachment list when this order is itself attached, its own otherwise.
func (o *Order) Group() []*Order {
	if o.Parent != nil {
		return o.Parent.Attachments
	}
	return o.Attachments
}

// HasPartialFillDetails reports whether the last simulated update carried a
// partial-fill quantity.
func (o *Order) HasPartialFillDetails() bool {
	return o.PartialFillQuantity != 0
}

// ClearPartialFillDetails resets simulated partial-fill reporting after the
// update has been consumed.
func (o *Order) ClearPartialFillDetails() {
	o.PartialFillQuantity = 0
	o.PartialFillPrice = 0
}

// TotalOrderAmount returns the order's notional value in the funds currency,
// preferring the actual average fill price when one is known.
func (o *Order) TotalOrderAmount() float64 {
	if o.AveragePrice > 0 {
		return o.AveragePrice * o.Quantity
	}
	return o.Price * o.Quantity
}

// Compare orders by exchange order ID, the total order used by registries.
func (o *Order) Compare(other *Order) int {
	switch {
	case o.ID < other.ID:
		return -1
	case o.ID > other.ID:
		return 1
	default:
		return 0
	}
}

func (o *Order) String() string {
	return fmt.Sprintf("order %d %s %s %s qty=%v executed=%v", o.ID, o.Side, o.Symbol, o.Status, o.Quantity, o.Executed)
}
