package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderStatus represents the lifecycle status of an exchange order.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
)

// IsTerminal reports whether no further status transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCancelled
}

// TradeSide represents the direction of a trade (LONG or SHORT).
type TradeSide string

const (
	Long  TradeSide = "LONG"
	Short TradeSide = "SHORT"
)

// Common exit reasons recorded when a trade is closed. Monitors may return
// arbitrary strings; these cover the built-in stop conditions.
const (
	ExitReasonStopLoss   = "STOP_LOSS"
	ExitReasonTakeProfit = "TAKE_PROFIT"
	ExitReasonTimeLimit  = "TIME_LIMIT"
	ExitReasonManual     = "MANUAL"
	ExitReasonLiquidated = "LIQUIDATED"
)
