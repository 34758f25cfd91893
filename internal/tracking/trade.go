// Package tracking implements the order-tracking and trade-lifecycle core:
// the Trade aggregate, the per-instrument OrderTracker and the directory of
// sibling trackers.
package tracking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cryptoTradeEngine/internal/domain"
	"cryptoTradeEngine/internal/ports"
	"cryptoTradeEngine/internal/registry"
)

// Settings holds the policy constants of the trade lifecycle. Zero values
// are replaced with defaults by withDefaults.
type Settings struct {
	// ExitThresholdPct is the exited percentage of the position quantity at
	// which a trade is deemed closed.
	ExitThresholdPct float64
	// MinOrderValue is the minimum tradable amount in the funds currency.
	// A residual position worth less than this is untradeable dust and no
	// longer blocks finalization.
	MinOrderValue float64
	// FeeRatePct is the fee percentage charged per order, used for
	// break-even and profit estimates.
	FeeRatePct float64
}

const defaultExitThresholdPct = 98.0

func (s Settings) withDefaults() Settings {
	if s.ExitThresholdPct <= 0 {
		s.ExitThresholdPct = defaultExitThresholdPct
	}
	return s
}

// PositivePriceChangePct returns the percentage change of price over base,
// where a 100% change is returned as 100.0.
func PositivePriceChangePct(base, price float64) float64 {
	return ((price - base) / base) * 100.0
}

// NegativePriceChangePct is the mirror of PositivePriceChangePct, used for
// SHORT average-based comparisons.
func NegativePriceChangePct(base, price float64) float64 {
	return ((base - price) / base) * 100.0
}

// TradeConfig carries the collaborators of a trade aggregate.
type TradeConfig struct {
	Candles  ports.CandleSource
	Monitors []ports.TradeMonitor
	Tracker  *OrderTracker
	Logger   ports.Logger
	Settings Settings
}

// Trade is the aggregate representing one open (or recently closed)
// position: a set of position-building orders, a set of exit orders, and
// derived statistics over them.
//
// All mutation methods are serialized by a per-trade lock; attachments and
// cascading cancellations can reach the same trade from several
// order-monitoring goroutines at once.
type Trade struct {
	id          int64
	side        domain.TradeSide
	symbol      string
	placeholder bool

	candles  ports.CandleSource
	monitors []ports.TradeMonitor
	tracker  *OrderTracker
	logger   ports.Logger
	settings Settings

	mu         sync.Mutex
	position   *registry.Registry[*domain.Order]
	exitOrders *registry.Registry[*domain.Order]

	// Cached average price plus the spent/units accumulators behind it.
	averagePrice float64
	totalSpent   float64
	totalUnits   float64

	ticks       int
	max         float64
	min         float64
	change      float64
	maxChange   float64
	minChange   float64
	firstCandle *domain.Candle
	lastCandle  *domain.Candle

	stopped    bool
	exitReason string
	finalized  bool

	finalizedQuantity float64
	exitAveragePrice  float64

	actualProfitLoss    float64
	actualProfitLossPct float64
}

// NewTrade creates a trade from its opening order. The trade side is fixed
// from the order's side: an opening SELL starts a SHORT trade.
func NewTrade(id int64, opening *domain.Order, cfg TradeConfig) (*Trade, error) {
	if opening == nil {
		return nil, fmt.Errorf("opening order is required: %w", ports.ErrInvalidRequest)
	}
	side := domain.Long
	if opening.IsSell() {
		side = domain.Short
	}
	t := newTrade(id, side, opening.Symbol, false, cfg)
	if _, err := t.IncreasePosition(opening); err != nil {
		return nil, err
	}
	return t, nil
}

// NewPlaceholder creates a placeholder trade representing "flat" state for
// bookkeeping symmetry. Placeholders reject all mutation.
func NewPlaceholder(id int64, side domain.TradeSide, symbol string, cfg TradeConfig) *Trade {
	return newTrade(id, side, symbol, true, cfg)
}

func newTrade(id int64, side domain.TradeSide, symbol string, placeholder bool, cfg TradeConfig) *Trade {
	t := &Trade{
		id:                id,
		side:              side,
		symbol:            symbol,
		placeholder:       placeholder,
		candles:           cfg.Candles,
		monitors:          cfg.Monitors,
		tracker:           cfg.Tracker,
		logger:            cfg.Logger,
		settings:          cfg.Settings.withDefaults(),
		position:          registry.New[*domain.Order](),
		exitOrders:        registry.New[*domain.Order](),
		finalizedQuantity: -1.0,
	}
	t.initTradeLocked()
	return t
}

// initTradeLocked resets the price window from the latest candle. Also the
// bootstrap path when a flat finalized trade is reopened.
func (t *Trade) initTradeLocked() {
	if t.candles != nil {
		t.firstCandle = t.candles.LatestCandle()
	}
	t.lastCandle = t.firstCandle
	if t.firstCandle != nil {
		t.max = t.firstCandle.Close
		t.min = t.firstCandle.Close
	}
	t.finalized = false
}

// ID returns the trade's identity, immutable once assigned.
func (t *Trade) ID() int64 { return t.id }

// Side returns the trade's direction, fixed at creation.
func (t *Trade) Side() domain.TradeSide { return t.side }

// Symbol returns the traded pair.
func (t *Trade) Symbol() string { return t.symbol }

// IsPlaceholder reports whether this trade is a flat-state placeholder.
func (t *Trade) IsPlaceholder() bool { return t.placeholder }

// IsLong reports whether this is a LONG trade.
func (t *Trade) IsLong() bool { return t.side == domain.Long }

// IsShort reports whether this is a SHORT trade.
func (t *Trade) IsShort() bool { return t.side == domain.Short }

// Compare orders trades by ID.
func (t *Trade) Compare(other *Trade) int {
	switch {
	case t.id < other.id:
		return -1
	case t.id > other.id:
		return 1
	default:
		return 0
	}
}

// IncreasePosition registers an order that builds the position, cascading
// registration of its attached orders: attachments on the opposite side are
// routed into the exit orders, same-side attachments into the position.
//
// Returns false when the trade is already exiting; a trade with unresolved
// exit orders cannot grow. Returns ErrTradeFinalized when called on a
// finalized trade that still holds position. A flat finalized trade is
// reopened instead, which is the bootstrap path for reusing a trade across
// placeholder/real transitions.
func (t *Trade) IncreasePosition(order *domain.Order) (bool, error) {
	t.mu.Lock()
	if t.finalized {
		if t.position.IsEmpty() {
			t.initTradeLocked()
		} else {
			t.mu.Unlock()
			return false, fmt.Errorf("trade %d: increase position: %w", t.id, ports.ErrTradeFinalized)
		}
	}

	t.purgeCancelledLocked(t.exitOrders)
	if !t.exitOrders.IsEmpty() {
		t.mu.Unlock()
		return false, nil
	}

	order.Trade = t
	t.position.AddOrReplace(order)
	for _, att := range order.Attachments {
		att.Trade = t
		if att.Side != order.Side {
			t.exitOrders.AddOrReplace(att)
		} else {
			t.position.AddOrReplace(att)
		}
	}
	t.averagePrice = 0
	t.updateMinAndMaxPricesLocked(t.lastCandle)
	t.mu.Unlock()

	t.notifyOrderSubmission(order)
	return true, nil
}

// DecreasePosition registers an order that reduces the position and records
// the first non-empty exit reason seen.
func (t *Trade) DecreasePosition(order *domain.Order, exitReason string) error {
	t.mu.Lock()
	if !t.placeholder && t.finalized {
		t.mu.Unlock()
		return fmt.Errorf("trade %d: decrease position: %w", t.id, ports.ErrTradeFinalized)
	}
	if !t.placeholder && t.position.IsEmpty() {
		t.mu.Unlock()
		return fmt.Errorf("trade %d: decrease position: %w", t.id, ports.ErrEmptyTrade)
	}

	t.exitOrders.AddOrReplace(order)
	order.Trade = t
	if t.exitReason == "" {
		t.exitReason = exitReason
	}
	t.averagePrice = 0
	t.updateMinAndMaxPricesLocked(t.lastCandle)
	t.mu.Unlock()

	t.notifyOrderSubmission(order)
	return nil
}

// notifyOrderSubmission fires bought/sold callbacks outside the trade lock
// so monitors are free to read the trade back.
func (t *Trade) notifyOrderSubmission(order *domain.Order) {
	for _, m := range t.monitors {
		if order.IsSell() {
			m.Sold(t, order)
		} else if order.IsBuy() {
			m.Bought(t, order)
		}
	}
}

// Tick processes a new candle: refreshes price extremes and their percentage
// counterparts, fires monitor callbacks and evaluates stop conditions.
// Returns the exit reason when a monitor stops the trade.
func (t *Trade) Tick(candle *domain.Candle) string {
	if t.placeholder || candle == nil {
		return ""
	}

	t.mu.Lock()
	t.lastCandle = candle
	t.averagePrice = 0
	nextChange := t.priceChangePctOfLocked(candle.Close)
	t.ticks++
	t.updateMinAndMaxPricesLocked(candle)
	t.change = nextChange

	prevMax := t.maxChange
	prevMin := t.minChange
	if t.IsLong() {
		t.maxChange = t.priceChangePctOfLocked(t.max)
		t.minChange = t.priceChangePctOfLocked(t.min)
	} else {
		t.maxChange = t.priceChangePctOfLocked(t.min)
		t.minChange = t.priceChangePctOfLocked(t.max)
	}
	newMax := t.maxChange
	newMin := t.minChange
	stopped := t.stopped
	t.mu.Unlock()

	if newMax > prevMax {
		for _, m := range t.monitors {
			m.HighestProfit(t, newMax)
		}
	}
	if newMin < prevMin {
		for _, m := range t.monitors {
			m.WorstLoss(t, newMin)
		}
	}

	if !stopped {
		for _, m := range t.monitors {
			if reason := m.HandleStop(t); reason != "" {
				t.mu.Lock()
				t.stopped = true
				if t.exitReason == "" {
					t.exitReason = reason
				}
				reason = t.exitReason
				t.mu.Unlock()
				return reason
			}
		}
	}
	return ""
}

func (t *Trade) updateMinAndMaxPricesLocked(candle *domain.Candle) {
	if candle == nil {
		return
	}
	if t.max < candle.Close {
		t.max = candle.Close
	}
	if t.min > candle.Close {
		t.min = candle.Close
	}
}

// updateAveragePriceLocked recomputes the fee-adjusted, quantity-weighted
// cost basis over the given order set, leaving the spent/units accumulators
// set for the caller. Fees are added for buys and subtracted for sells.
func (t *Trade) updateAveragePriceLocked(orders *registry.Registry[*domain.Order]) {
	if t.placeholder {
		return
	}
	t.change, t.maxChange, t.minChange = 0, 0, 0

	t.totalSpent = 0
	t.totalUnits = 0
	for i := orders.Len() - 1; i >= 0; i-- {
		order := orders.At(i)
		fees := order.FeesPaid
		if order.IsBuy() {
			t.totalSpent += order.TotalTraded + fees
		} else {
			t.totalSpent += order.TotalTraded - fees
		}
		t.totalUnits += order.Executed
	}
	if t.totalUnits == 0 {
		t.averagePrice = 0
		return
	}
	t.averagePrice = t.totalSpent / t.totalUnits
	last := t.lastClosingPriceLocked()
	if t.IsLong() {
		t.change = PositivePriceChangePct(t.averagePrice, last)
		t.maxChange = PositivePriceChangePct(t.averagePrice, t.maxPriceLocked())
		t.minChange = PositivePriceChangePct(t.averagePrice, t.minPriceLocked())
	} else {
		t.change = -PositivePriceChangePct(t.averagePrice, last)
		t.maxChange = -PositivePriceChangePct(t.averagePrice, t.minPriceLocked())
		t.minChange = NegativePriceChangePct(t.averagePrice, t.maxPriceLocked())
	}
}

// AveragePrice returns the average price paid over every order in the
// position, lazily recomputed after any mutation invalidated it. Zero units
// yield an average price of 0.
func (t *Trade) AveragePrice() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.averagePriceLocked()
}

func (t *Trade) averagePriceLocked() float64 {
	if t.averagePrice <= 0 {
		t.updateAveragePriceLocked(t.position)
	}
	return t.averagePrice
}

// priceChangePctOfLocked returns the signed change of price against the
// average price, sign flipped for SHORT trades so a price drop is a gain.
func (t *Trade) priceChangePctOfLocked(price float64) float64 {
	avg := t.averagePriceLocked()
	if avg <= 0 {
		return 0
	}
	if t.IsLong() {
		return PositivePriceChangePct(avg, price)
	}
	return NegativePriceChangePct(avg, price)
}

// PriceChangePct returns the current change percentage since the trade
// opened, where a 100% change is returned as 100.0.
func (t *Trade) PriceChangePct() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.averagePriceLocked() > 0 {
		return t.change
	}
	return 0
}

// MaxPrice returns the maximum closing price recorded since the position
// opened.
func (t *Trade) MaxPrice() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxPriceLocked()
}

func (t *Trade) maxPriceLocked() float64 {
	if t.tradedLocked() {
		return t.max
	}
	return 0
}

// MinPrice returns the minimum closing price recorded since the position
// opened.
func (t *Trade) MinPrice() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.minPriceLocked()
}

func (t *Trade) minPriceLocked() float64 {
	if t.tradedLocked() {
		return t.min
	}
	return 0
}

func (t *Trade) tradedLocked() bool {
	return !t.position.IsEmpty() || t.finalizedQuantity > 0
}

// MaxChange returns the best favorable excursion percentage, regardless of
// trade side.
func (t *Trade) MaxChange() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.averagePriceLocked() > 0 {
		return t.maxChange
	}
	return 0
}

// MinChange returns the worst adverse excursion percentage, regardless of
// trade side.
func (t *Trade) MinChange() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.averagePriceLocked() > 0 {
		return t.minChange
	}
	return 0
}

// Ticks returns the number of candles processed since the position opened.
func (t *Trade) Ticks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tradedLocked() {
		return t.ticks
	}
	return 0
}

// TradeDuration returns the time elapsed between the first candle observed
// and the latest one.
func (t *Trade) TradeDuration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.tradedLocked() || t.firstCandle == nil || t.lastCandle == nil {
		return 0
	}
	return t.lastCandle.CloseTime.Sub(t.firstCandle.CloseTime)
}

// LastClosingPrice returns the close of the latest candle observed.
func (t *Trade) LastClosingPrice() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastClosingPriceLocked()
}

func (t *Trade) lastClosingPriceLocked() float64 {
	if t.lastCandle == nil {
		return 0
	}
	return t.lastCandle.Close
}

// BreakEvenChange returns the minimum favorable change percentage required
// to cover round-trip fees at the current average price.
func (t *Trade) BreakEvenChange() float64 {
	if t.AveragePrice() <= 0 {
		return 0
	}
	f := t.settings.FeeRatePct / 100.0
	if f >= 1 {
		return 0
	}
	return ((1+f)/(1-f) - 1) * 100.0
}

// Stopped reports whether a monitor stopped this trade.
func (t *Trade) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// ExitReason returns the first stop reason recorded for this trade, if any.
func (t *Trade) ExitReason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitReason
}

// ActualProfitLoss returns the realized profit and loss in the funds
// currency.
func (t *Trade) ActualProfitLoss() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.actualProfitLoss
}

// ActualProfitLossPct returns the realized profit and loss percentage.
func (t *Trade) ActualProfitLossPct() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.actualProfitLossPct
}

// EstimateProfitLossPct estimates the profit of exiting through the given
// order at current prices, net of fees. Resting stop orders are evaluated at
// their trigger price.
func (t *Trade) EstimateProfitLossPct(order *domain.Order) float64 {
	t.mu.Lock()
	change := t.change
	if t.averagePriceLocked() <= 0 {
		change = 0
	}
	if order != nil && !order.Active && order.TriggerPrice != 0 {
		last := t.lastClosingPriceLocked()
		if t.IsLong() {
			change = PositivePriceChangePct(order.TriggerPrice, last)
		} else {
			change = -PositivePriceChangePct(order.TriggerPrice, last)
		}
	}
	t.mu.Unlock()
	return change - t.settings.FeeRatePct
}

// Position returns the orders that build the position, in ascending order ID
// order.
func (t *Trade) Position() []*domain.Order {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position.Items()
}

// ExitOrders returns the orders that reduce the position, in ascending order
// ID order.
func (t *Trade) ExitOrders() []*domain.Order {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitOrders.Items()
}

// IsEmpty reports whether the trade holds no orders at all.
func (t *Trade) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position.IsEmpty() && t.exitOrders.IsEmpty()
}

// OrderFinalized is the hook invoked by the tracker when one of this trade's
// orders reaches a terminal status. It drops unfilled cancelled position
// orders, refreshes the average price and realizes profit and loss once the
// exit side resolves.
func (t *Trade) OrderFinalized(order *domain.Order) {
	if t.placeholder {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.position.Contains(order) {
		if order.Executed == 0 {
			// Nothing filled, cancelled.
			t.position.Remove(order)
			return
		}
		if order.IsBuy() {
			t.updateAveragePriceLocked(t.position)
		}
		return
	}

	if !t.exitOrders.Contains(order) {
		return
	}
	t.exitOrders.AddOrReplace(order)

	if t.isFinalizedLocked() {
		// Full exit: realize P&L against the proportional cost basis of the
		// units actually sold, excluding dust that never left the position.
		t.updateAveragePriceLocked(t.exitOrders)
		totalSold := t.totalSpent
		soldUnits := t.totalUnits
		t.exitAveragePrice = t.averagePrice

		if soldUnits != 0 {
			t.updateAveragePriceLocked(t.position)
			cost := t.totalSpent * (soldUnits / t.totalUnits)
			t.actualProfitLoss = totalSold - cost
			t.actualProfitLossPct = PositivePriceChangePct(t.averagePrice, t.exitAveragePrice)
		}
		t.position.Clear()
		t.exitOrders.Clear()
	} else {
		// Partial exit: realize against this order's own fill price.
		totalSold := order.TotalTraded
		sellPrice := order.AveragePrice

		t.updateAveragePriceLocked(t.position)
		t.actualProfitLossPct = PositivePriceChangePct(t.averagePrice, sellPrice)
		t.actualProfitLoss = totalSold - order.Executed*t.averagePrice
	}

	if t.IsShort() {
		// A price drop is a gain on the short side.
		t.actualProfitLoss = -t.actualProfitLoss
		t.actualProfitLossPct = -t.actualProfitLossPct
	}
}

// purgeCancelledLocked removes cancelled zero-quantity orders from the set
// and returns the sum of executed quantities over the remainder.
func (t *Trade) purgeCancelledLocked(orders *registry.Registry[*domain.Order]) float64 {
	total := 0.0
	for i := orders.Len() - 1; i >= 0; i-- {
		order := orders.At(i)
		if order.IsCancelled() && order.Executed == 0 {
			orders.Remove(order)
		} else {
			total += order.Executed
		}
	}
	return total
}

// IsFinalized reports whether this trade is closed. The result is sticky:
// once true it never re-evaluates, and the trade rejects further mutation.
func (t *Trade) IsFinalized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isFinalizedLocked()
}

func (t *Trade) isFinalizedLocked() bool {
	if t.finalized {
		return true
	}
	t.finalized = t.checkIfFinalizedLocked()
	return t.finalized
}

// checkIfFinalizedLocked is the finalization decision: a trade whose exited
// quantity crossed the exit threshold, or whose remaining position is worth
// less than the minimum tradable amount, is closed. The frozen finalized
// quantity captures the exited amount, deliberately excluding untradeable
// residual dust.
func (t *Trade) checkIfFinalizedLocked() bool {
	if t.placeholder || t.position.IsEmpty() {
		return true
	}
	if t.exitOrders.IsEmpty() {
		return false
	}

	qtyInPosition := t.purgeCancelledLocked(t.position)
	if qtyInPosition == 0 {
		return false
	}

	qtyInExit := t.purgeCancelledLocked(t.exitOrders)
	exitPct := qtyInExit * 100.0 / qtyInPosition
	remaining := qtyInPosition - qtyInExit

	if exitPct >= t.settings.ExitThresholdPct {
		t.finalizedQuantity = qtyInPosition - remaining
		return true
	}
	if remaining*t.lastClosingPriceLocked() < t.settings.MinOrderValue {
		t.finalizedQuantity = qtyInPosition - remaining
		return true
	}
	return false
}

// Quantity returns the quantity currently held, or the frozen finalized
// quantity once the trade closed.
func (t *Trade) Quantity() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finalizedQuantity < 0 {
		return t.purgeCancelledLocked(t.position)
	}
	return t.finalizedQuantity
}

// QuantityInPosition returns position quantity minus exited quantity. A
// negative result violates a hard invariant and returns
// ports.ErrNegativeQuantity.
func (t *Trade) QuantityInPosition() (float64, error) {
	t.mu.Lock()
	pos := t.purgeCancelledLocked(t.position)
	exit := t.purgeCancelledLocked(t.exitOrders)
	t.mu.Unlock()
	if pos-exit < 0 {
		err := fmt.Errorf("trade %d: %v of %s held in %s trade (position=%v exit=%v): %w",
			t.id, pos-exit, t.symbol, t.side, pos, exit, ports.ErrNegativeQuantity)
		if t.logger != nil {
			t.logger.Fatal(context.Background(), err, "Illegal quantity held in trade")
		}
		return 0, err
	}
	return pos - exit, nil
}

// TryingToExit reports whether any exit order is still unresolved.
// Placeholders always report true.
func (t *Trade) TryingToExit() bool {
	if t.placeholder {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := t.exitOrders.Len() - 1; i >= 0; i-- {
		if !t.exitOrders.At(i).IsFinalized() {
			return true
		}
	}
	return false
}

// CanExit reports whether every monitor allows exiting this trade now.
func (t *Trade) CanExit() bool {
	t.mu.Lock()
	empty := t.position.IsEmpty()
	t.mu.Unlock()
	if t.placeholder || empty {
		return false
	}
	for _, m := range t.monitors {
		if !m.AllowExit(t) {
			return false
		}
	}
	return true
}

// AllowTradeSwitch reports whether every monitor allows reallocating this
// trade's funds to trade exitSymbol. A trade with no monitors never allows
// switching.
func (t *Trade) AllowTradeSwitch(exitSymbol string, candle *domain.Candle, candleTicker string) bool {
	allowed := len(t.monitors) > 0
	for _, m := range t.monitors {
		allowed = allowed && m.AllowTradeSwitch(t, exitSymbol, candle, candleTicker)
	}
	return allowed
}

// FinalizeTrade cancels every unresolved exit order and marks the trade
// finalized regardless of cancellation outcome.
func (t *Trade) FinalizeTrade(ctx context.Context) {
	pending := t.unresolvedExitOrders()
	if t.tracker != nil {
		for _, order := range pending {
			t.tracker.CancelOrder(ctx, order, false)
		}
	}
	t.mu.Lock()
	t.finalized = true
	t.mu.Unlock()
}

// Liquidate force-fills every unresolved exit order at the latest close
// price. Simulation only.
func (t *Trade) Liquidate(ctx context.Context) {
	if t.tracker == nil {
		return
	}
	t.mu.Lock()
	candle := t.lastCandle
	t.mu.Unlock()
	for _, order := range t.unresolvedExitOrders() {
		t.tracker.LiquidateOrder(ctx, order, candle)
	}
}

// unresolvedExitOrders snapshots the exit orders still awaiting a terminal
// status. Collected under the trade lock, acted on outside it: cancellation
// goes back through the tracker, which must never be entered with a trade
// lock held.
func (t *Trade) unresolvedExitOrders() []*domain.Order {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*domain.Order
	for i := t.exitOrders.Len() - 1; i >= 0; i-- {
		if order := t.exitOrders.At(i); !order.IsFinalized() {
			out = append(out, order)
		}
	}
	return out
}

// Record builds the journal record for this trade.
func (t *Trade) Record() *domain.TradeRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec := &domain.TradeRecord{
		TradeID:       t.id,
		Symbol:        t.symbol,
		Side:          t.side,
		EntryPrice:    t.averagePrice,
		ExitPrice:     t.exitAveragePrice,
		Quantity:      t.finalizedQuantity,
		ProfitLoss:    t.actualProfitLoss,
		ProfitLossPct: t.actualProfitLossPct,
		MaxPrice:      t.max,
		MinPrice:      t.min,
		Ticks:         t.ticks,
		ExitReason:    t.exitReason,
	}
	if rec.Quantity < 0 {
		rec.Quantity = 0
	}
	if t.firstCandle != nil {
		rec.OpenTime = t.firstCandle.CloseTime
	}
	if t.lastCandle != nil {
		rec.CloseTime = t.lastCandle.CloseTime
	}
	return rec
}
