package tracking

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"

	"cryptoTradeEngine/internal/domain"
	"cryptoTradeEngine/internal/ports"
	"cryptoTradeEngine/internal/registry"
)

const (
	defaultPollInterval   = 30 * time.Second
	defaultPollBackoffMin = 1 * time.Second
	defaultPollBackoffMax = 1 * time.Minute
	defaultMaxPollRetries = 5
)

// Config holds the collaborators and tuning knobs of an OrderTracker.
type Config struct {
	Symbol    string
	Source    ports.OrderStatusSource
	Balances  ports.BalanceRefresher
	Policy    ports.OrderLifecyclePolicy
	Logger    ports.Logger
	Journal   ports.TradeJournal // optional: finalized trades are persisted when set
	Directory *Directory         // optional: enables the cross-symbol stale-order sweep
	Resubmit  ports.ResubmitFunc // optional: handed to lifecycle policy callbacks

	// Defaults for trades opened through OpenTrade.
	Candles       ports.CandleSource   // required by OpenTrade
	Monitors      []ports.TradeMonitor // optional
	TradeSettings Settings

	// Simulated switches from per-order polling goroutines to the
	// synchronous UpdateOpenOrders sweep.
	Simulated bool

	PollInterval   time.Duration // default 30s
	PollBackoffMin time.Duration // default 1s
	PollBackoffMax time.Duration // default 1m
	MaxPollRetries int           // default 5
}

// OrderTracker bridges the external order-status source and the Trade
// aggregates of one instrument. It owns the pending and finalized order
// registries and reacts to status transitions: updating the owning trade,
// triggering balance refresh, invoking the lifecycle policy and cascading
// cancellations to attached orders.
type OrderTracker struct {
	symbol    string
	source    ports.OrderStatusSource
	balances  ports.BalanceRefresher
	policy    ports.OrderLifecyclePolicy
	logger    ports.Logger
	journal   ports.TradeJournal
	directory *Directory
	resubmit  ports.ResubmitFunc
	simulated bool

	candles       ports.CandleSource
	monitors      []ports.TradeMonitor
	tradeSettings Settings
	nextTradeID   atomic.Int64

	pollInterval   time.Duration
	pollBackoffMin time.Duration
	pollBackoffMax time.Duration
	maxPollRetries int

	// updateMu serializes every status transition (poll results, sweeps,
	// cancellations) so each read-modify-write on an order is one critical
	// section. The registry mutexes below are only ever taken inside it or
	// on their own, never the other way around.
	updateMu sync.Mutex

	pendingMu sync.Mutex
	pending   *registry.Registry[*domain.Order]

	finalizedMu sync.Mutex
	finalized   *registry.Registry[*domain.Order]

	// Trades already written to the journal, guarded by updateMu.
	journaled map[int64]struct{}

	wg sync.WaitGroup
}

// NewOrderTracker creates a tracker for one instrument.
func NewOrderTracker(cfg Config) (*OrderTracker, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("symbol is required: %w", ports.ErrConfigurationError)
	}
	if cfg.Source == nil || cfg.Balances == nil || cfg.Policy == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("order tracker for %s: %w", cfg.Symbol, ports.ErrMissingCollaborator)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.PollBackoffMin <= 0 {
		cfg.PollBackoffMin = defaultPollBackoffMin
	}
	if cfg.PollBackoffMax <= 0 {
		cfg.PollBackoffMax = defaultPollBackoffMax
	}
	if cfg.MaxPollRetries <= 0 {
		cfg.MaxPollRetries = defaultMaxPollRetries
	}
	t := &OrderTracker{
		symbol:         cfg.Symbol,
		source:         cfg.Source,
		balances:       cfg.Balances,
		policy:         cfg.Policy,
		logger:         cfg.Logger,
		journal:        cfg.Journal,
		directory:      cfg.Directory,
		resubmit:       cfg.Resubmit,
		simulated:      cfg.Simulated,
		candles:        cfg.Candles,
		monitors:       cfg.Monitors,
		tradeSettings:  cfg.TradeSettings,
		pollInterval:   cfg.PollInterval,
		pollBackoffMin: cfg.PollBackoffMin,
		pollBackoffMax: cfg.PollBackoffMax,
		maxPollRetries: cfg.MaxPollRetries,
		pending:        registry.New[*domain.Order](),
		finalized:      registry.New[*domain.Order](),
		journaled:      make(map[int64]struct{}),
	}
	if t.resubmit == nil {
		t.resubmit = func(ctx context.Context, order *domain.Order) {
			t.logger.Warn(ctx, "Resubmission requested but no resubmit function configured", orderFields(order))
		}
	}
	if cfg.Directory != nil {
		cfg.Directory.Register(t)
	}
	return t, nil
}

// Symbol returns the instrument this tracker owns.
func (t *OrderTracker) Symbol() string { return t.symbol }

// OpenTrade builds a trade around a freshly placed opening order using the
// tracker's configured candle source, monitors and settings, then begins
// monitoring the order. Trade IDs are assigned sequentially per tracker.
func (t *OrderTracker) OpenTrade(ctx context.Context, opening *domain.Order) (*Trade, error) {
	if t.candles == nil {
		return nil, fmt.Errorf("open trade on %s: candle source not configured: %w", t.symbol, ports.ErrMissingCollaborator)
	}
	trade, err := NewTrade(t.nextTradeID.Add(1), opening, TradeConfig{
		Candles:  t.candles,
		Monitors: t.monitors,
		Tracker:  t,
		Logger:   t.logger,
		Settings: t.tradeSettings,
	})
	if err != nil {
		return nil, err
	}
	if err := t.InitiateOrderMonitoring(ctx, opening); err != nil {
		return nil, err
	}
	return trade, nil
}

// WaitForFill registers the order in the pending registry and, in live mode,
// starts one monitoring goroutine that polls the order's status until it
// reaches a terminal state. In simulated mode status updates are driven
// externally via UpdateOpenOrders. Already-terminal orders are a no-op.
func (t *OrderTracker) WaitForFill(ctx context.Context, order *domain.Order) {
	if order.IsFinalized() {
		return
	}
	t.pendingMu.Lock()
	t.pending.AddOrReplace(order)
	t.pendingMu.Unlock()

	if t.simulated {
		return
	}
	t.wg.Add(1)
	go t.monitorOrder(ctx, order)
}

// monitorOrder is the per-order polling loop. Each poll result is fully
// processed before the next sleep begins; there is no ordering guarantee
// between independent orders' loops.
func (t *OrderTracker) monitorOrder(ctx context.Context, order *domain.Order) {
	defer t.wg.Done()
	b := &backoff.Backoff{
		Min:    t.pollBackoffMin,
		Max:    t.pollBackoffMax,
		Jitter: true,
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(t.pollInterval):
		}

		snap, err := t.fetchWithRetry(ctx, order, b)
		if err != nil {
			t.logger.Error(ctx, err, "Giving up on order monitoring after repeated poll failures", orderFields(order))
			t.policy.Abandoned(ctx, order, err)
			return
		}
		b.Reset()

		t.updateMu.Lock()
		prevExecuted := order.Executed
		applySnapshot(order, snap)
		t.processOrderUpdateLocked(ctx, order, prevExecuted)
		done := order.IsFinalized()
		t.updateMu.Unlock()

		if done {
			return
		}
	}
}

// fetchWithRetry polls the status source, retrying transient failures with
// exponential backoff before giving up.
func (t *OrderTracker) fetchWithRetry(ctx context.Context, order *domain.Order, b *backoff.Backoff) (ports.OrderSnapshot, error) {
	var lastErr error
	for attempt := 0; attempt < t.maxPollRetries; attempt++ {
		snap, err := t.source.FetchOrderStatus(ctx, order)
		if err == nil {
			return snap, nil
		}
		lastErr = err
		t.logger.Warn(ctx, "Order status poll failed, retrying", map[string]interface{}{
			"orderID": order.ID,
			"symbol":  order.Symbol,
			"attempt": attempt + 1,
			"error":   err.Error(),
		})
		select {
		case <-ctx.Done():
			return ports.OrderSnapshot{}, fmt.Errorf("order %d: %w", order.ID, ports.ErrContextCanceled)
		case <-time.After(b.Duration()):
		}
	}
	return ports.OrderSnapshot{}, fmt.Errorf("polling order %d failed after %d attempts: %w", order.ID, t.maxPollRetries, lastErr)
}

// applySnapshot folds a fresh observation into the mutable order handle.
// Identity is never touched.
func applySnapshot(order *domain.Order, snap ports.OrderSnapshot) {
	order.Status = snap.Status
	order.Executed = snap.Executed
	order.AveragePrice = snap.AveragePrice
	order.TotalTraded = snap.TotalTraded
	order.FeesPaid = snap.FeesPaid
	order.PartialFillQuantity = snap.PartialFillQuantity
	order.PartialFillPrice = snap.PartialFillPrice
}

// InitiateOrderMonitoring routes a freshly submitted order by its initial
// status. An order without an associated trade is a fatal consistency error.
func (t *OrderTracker) InitiateOrderMonitoring(ctx context.Context, order *domain.Order) error {
	if order == nil {
		return nil
	}
	if order.Trade == nil {
		err := fmt.Errorf("%s: %w", order, ports.ErrNoTradeAssociated)
		t.logger.Fatal(ctx, err, "Cannot track order without an owning trade", orderFields(order))
		return err
	}
	switch order.Status {
	case domain.StatusNew, domain.StatusPartiallyFilled:
		t.logOrderStatus(ctx, "Tracking pending order", order)
		t.WaitForFill(ctx, order)
	case domain.StatusFilled:
		t.logOrderStatus(ctx, "Completed order", order)
		t.updateMu.Lock()
		t.orderFinalizedLocked(ctx, order)
		t.processAttachedLocked(ctx, order)
		t.updateMu.Unlock()
	case domain.StatusCancelled:
		t.logOrderStatus(ctx, "Could not create order", order)
		t.updateMu.Lock()
		t.orderFinalizedLocked(ctx, order)
		t.updateMu.Unlock()
	}
	return nil
}

// UpdateOpenOrders is the single-threaded batch sweep substituting for all
// per-order polling goroutines in simulated mode.
func (t *OrderTracker) UpdateOpenOrders(ctx context.Context) {
	if !t.simulated {
		return
	}
	t.updateMu.Lock()
	defer t.updateMu.Unlock()

	t.pendingMu.Lock()
	orders := t.pending.Items()
	t.pendingMu.Unlock()

	for i := len(orders) - 1; i >= 0; i-- {
		order := orders[i]
		snap, err := t.source.FetchOrderStatus(ctx, order)
		if err != nil {
			t.logger.Error(ctx, err, "Failed to update simulated order status", orderFields(order))
			continue
		}
		prevExecuted := order.Executed
		applySnapshot(order, snap)
		t.processOrderUpdateLocked(ctx, order, prevExecuted)
	}
}

// processOrderUpdateLocked is the central diff between the previously
// observed state and the freshly applied one. Terminal statuses finalize the
// order; otherwise it is re-registered in pending with replace semantics and
// the lifecycle policy is told whether anything changed.
func (t *OrderTracker) processOrderUpdateLocked(ctx context.Context, order *domain.Order, prevExecuted float64) {
	if order.IsFinalized() {
		t.logOrderStatus(ctx, "Order finalized", order)
		t.orderFinalizedLocked(ctx, order)
		t.processAttachedLocked(ctx, order)
		return
	}

	t.pendingMu.Lock()
	t.pending.AddOrReplace(order)
	t.pendingMu.Unlock()

	if (t.simulated && order.HasPartialFillDetails()) || order.Executed != prevExecuted {
		t.logOrderStatus(ctx, "Order updated", order)
		if err := t.balances.RefreshBalances(ctx); err != nil {
			t.logger.Error(ctx, err, "Failed to refresh balances after order update", orderFields(order))
		}
		t.policy.Updated(ctx, order, tradeViewOf(order), t.resubmit)
	} else {
		t.logOrderStatus(ctx, "Order unchanged", order)
		t.policy.Unchanged(ctx, order, tradeViewOf(order), t.resubmit)
	}
	order.ClearPartialFillDetails()

	// The policy may have cancelled the order post-hoc.
	if order.Status == domain.StatusCancelled {
		t.cancelOrderLocked(ctx, order, true)
	}
}

// orderFinalizedLocked moves a terminal order out of the pending registry
// (into the finalized registry when any quantity executed), refreshes
// balances, notifies, and cascades cancellation to attached orders without
// double-notifying.
func (t *OrderTracker) orderFinalizedLocked(ctx context.Context, order *domain.Order) {
	t.pendingMu.Lock()
	t.pending.Remove(order)
	t.pendingMu.Unlock()
	if order.Executed != 0 {
		t.finalizedMu.Lock()
		t.finalized.AddOrReplace(order)
		t.finalizedMu.Unlock()
	}

	if err := t.balances.RefreshBalances(ctx); err != nil {
		t.logger.Error(ctx, err, "Failed to refresh balances after order finalization", orderFields(order))
	}

	t.notifyFinalizedLocked(ctx, order)

	if attachments := order.Group(); len(attachments) > 0 && order.IsCancelled() && order.Executed == 0 {
		for _, attached := range attachments {
			if attached != order {
				attached.Cancel()
				// An attachment may already be registered for polling; its
				// pending entry must go with it or a later sweep would
				// re-observe a dead order.
				t.pendingMu.Lock()
				t.pending.Remove(attached)
				t.pendingMu.Unlock()
				t.notifyFinalizedLocked(ctx, attached)
			}
		}
	}
}

// notifyFinalizedLocked delivers exactly one finalization notification for
// the order to the lifecycle policy and the owning trade, appends the order
// to the audit log, and journals the trade once it closes.
func (t *OrderTracker) notifyFinalizedLocked(ctx context.Context, order *domain.Order) {
	trade := tradeOf(order)
	t.policy.Finalized(ctx, order, tradeViewOf(order))
	if t.journal != nil {
		if err := t.journal.RecordOrder(ctx, order); err != nil {
			t.logger.Error(ctx, err, "Failed to audit finalized order", orderFields(order))
		}
	}
	if trade == nil {
		return
	}
	trade.OrderFinalized(order)

	if t.journal == nil || trade.IsPlaceholder() || !trade.IsFinalized() {
		return
	}
	if _, done := t.journaled[trade.ID()]; done {
		return
	}
	rec := trade.Record()
	if rec.Quantity <= 0 {
		return
	}
	if _, err := t.journal.RecordTrade(ctx, rec); err != nil {
		t.logger.Error(ctx, err, "Failed to journal finalized trade", map[string]interface{}{
			"tradeID": trade.ID(),
			"symbol":  trade.Symbol(),
		})
		return
	}
	t.journaled[trade.ID()] = struct{}{}
}

// processAttachedLocked begins monitoring the attached orders of a filled
// primary order; they go live on the exchange once the primary completes.
// Simulated fills drive attachments through the sweep instead.
func (t *OrderTracker) processAttachedLocked(ctx context.Context, order *domain.Order) {
	if t.simulated || !order.IsFinalized() || order.Executed == 0 {
		return
	}
	for _, attached := range order.Group() {
		if attached == order || attached.IsFinalized() {
			continue
		}
		if attached.Trade == nil {
			attached.Trade = order.Trade
		}
		t.logOrderStatus(ctx, "Tracking attached order", attached)
		t.WaitForFill(ctx, attached)
	}
}

// CancelOrder cancels the latest tracked version of the order, locally and
// on the exchange. Unknown or already-terminal orders are a no-op unless
// force is set. Exchange-side cancellation failure still results in local
// finalization: the exchange is the source of truth, and a stuck pending
// order is worse than a locally-finalized one that may still be live.
func (t *OrderTracker) CancelOrder(ctx context.Context, order *domain.Order, force bool) {
	t.updateMu.Lock()
	defer t.updateMu.Unlock()
	t.cancelOrderLocked(ctx, order, force)
}

func (t *OrderTracker) cancelOrderLocked(ctx context.Context, order *domain.Order, force bool) {
	t.pendingMu.Lock()
	latest, ok := t.pending.Get(order)
	t.pendingMu.Unlock()

	if !force && (!ok || latest.IsFinalized()) {
		return
	}
	if ok {
		order = latest
	}

	order.Cancel()
	if err := t.source.Cancel(ctx, order); err != nil {
		t.logger.Error(ctx, err, "Failed to execute cancellation of order on exchange", orderFields(order))
	}
	t.orderFinalizedLocked(ctx, order)
	t.logOrderStatus(ctx, "Cancellation via order tracker", order)
}

// CancelAllOrders cancels every pending order of this instrument.
func (t *OrderTracker) CancelAllOrders(ctx context.Context) {
	t.updateMu.Lock()
	defer t.updateMu.Unlock()

	t.pendingMu.Lock()
	orders := t.pending.Items()
	t.pendingMu.Unlock()

	for i := len(orders) - 1; i >= 0; i-- {
		order := orders[i]
		order.Cancel()
		t.processOrderUpdateLocked(ctx, order, order.Executed)
	}
}

// ExecuteCancelStaleOrdersFor asks the lifecycle policy, for each pending
// order of this instrument, whether it should be cancelled to release funds
// for a competing trade on the given side, and cancels the selected subset.
func (t *OrderTracker) ExecuteCancelStaleOrdersFor(ctx context.Context, side domain.TradeSide, requester ports.TradeView) {
	t.pendingMu.Lock()
	orders := t.pending.Items()
	t.pendingMu.Unlock()

	var toCancel []*domain.Order
	for i := len(orders) - 1; i >= 0; i-- {
		order := orders[i]
		if order.IsFinalized() {
			continue
		}
		if t.policy.CancelToReleaseFundsFor(ctx, order, tradeViewOf(order), requester) {
			toCancel = append(toCancel, order)
		}
	}
	for _, order := range toCancel {
		t.logger.Info(ctx, "Cancelling stale order to release funds", map[string]interface{}{
			"orderID":       order.ID,
			"symbol":        order.Symbol,
			"competingSide": side,
		})
		t.CancelOrder(ctx, order, false)
	}
}

// CancelStaleOrdersFor fans the stale-order sweep out across all other
// instruments tracked by the same account.
func (t *OrderTracker) CancelStaleOrdersFor(ctx context.Context, side domain.TradeSide, requester ports.TradeView) {
	if t.directory == nil {
		return
	}
	t.directory.ForEach(func(sibling *OrderTracker) {
		if sibling.symbol != t.symbol {
			sibling.ExecuteCancelStaleOrdersFor(ctx, side, requester)
		}
	})
}

// WaitingForFill reports whether an open order would block a new order for
// this side and asset, accounting for symbol inversion: an open SELL of ADA
// against BTC blocks a new BUY intent for BTC funded by that ADA.
func (t *OrderTracker) WaitingForFill(assetSymbol string, side domain.OrderSide, tradeSide domain.TradeSide) bool {
	t.updateMu.Lock()
	defer t.updateMu.Unlock()
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()

	for i := t.pending.Len() - 1; i >= 0; i-- {
		order := t.pending.At(i)
		if order.IsFinalized() || order.TradeSide != tradeSide {
			continue
		}
		if order.Side == side && order.AssetSymbol == assetSymbol {
			return true
		}
		if side == domain.Buy && order.IsSell() && order.FundsSymbol == assetSymbol {
			return true
		}
		if side == domain.Sell && order.IsBuy() && order.FundsSymbol == assetSymbol {
			return true
		}
	}
	return false
}

// GetOrder returns the latest tracked version of the order. A finalized
// order is consumed: the first lookup after finalization removes it from the
// finalized registry.
func (t *OrderTracker) GetOrder(order *domain.Order) *domain.Order {
	t.updateMu.Lock()
	defer t.updateMu.Unlock()

	t.pendingMu.Lock()
	latest, ok := t.pending.Get(order)
	if ok && latest.IsFinalized() {
		t.finalizedMu.Lock()
		t.finalized.AddOrReplace(latest)
		t.finalizedMu.Unlock()
		t.pending.Remove(latest)
	}
	t.pendingMu.Unlock()

	if !ok {
		t.finalizedMu.Lock()
		if done, found := t.finalized.Get(order); found {
			t.finalized.Remove(done)
			latest = done
			ok = true
		}
		t.finalizedMu.Unlock()
	}

	if !ok {
		return order
	}
	return latest
}

// LiquidateOrder force-fills an order at the candle's close and finalizes
// it. Simulation only.
func (t *OrderTracker) LiquidateOrder(ctx context.Context, order *domain.Order, candle *domain.Candle) {
	if !t.simulated {
		return
	}
	if err := t.source.FillImmediately(ctx, order, candle); err != nil {
		t.logger.Error(ctx, err, "Failed to fill order immediately", orderFields(order))
		return
	}
	t.updateMu.Lock()
	t.orderFinalizedLocked(ctx, order)
	t.updateMu.Unlock()
}

// PendingOrders returns a snapshot of the pending registry.
func (t *OrderTracker) PendingOrders() []*domain.Order {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	return t.pending.Items()
}

// Clear drops all pending orders without cancelling them.
func (t *OrderTracker) Clear() {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	t.pending.Clear()
}

// Wait blocks until every monitoring goroutine has returned. Cancel the
// context passed to WaitForFill to stop them.
func (t *OrderTracker) Wait() {
	t.wg.Wait()
}

func (t *OrderTracker) logOrderStatus(ctx context.Context, msg string, order *domain.Order) {
	t.logger.Debug(ctx, msg, orderFields(order))
}

func orderFields(order *domain.Order) map[string]interface{} {
	return map[string]interface{}{
		"orderID":  order.ID,
		"symbol":   order.Symbol,
		"side":     order.Side,
		"status":   order.Status,
		"quantity": order.Quantity,
		"executed": order.Executed,
	}
}

func tradeOf(order *domain.Order) *Trade {
	if trade, ok := order.Trade.(*Trade); ok && trade != nil {
		return trade
	}
	return nil
}

func tradeViewOf(order *domain.Order) ports.TradeView {
	if trade := tradeOf(order); trade != nil {
		return trade
	}
	return nil
}
