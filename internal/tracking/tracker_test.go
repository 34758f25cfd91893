package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoTradeEngine/internal/domain"
	"cryptoTradeEngine/internal/ports"
)

// mockSource is an OrderStatusSource returning scripted snapshots per order.
type mockSource struct {
	mu        sync.Mutex
	snapshots map[int64]ports.OrderSnapshot
	fetchErr  error
	cancelErr error
	cancelled []int64
}

func newMockSource() *mockSource {
	return &mockSource{snapshots: make(map[int64]ports.OrderSnapshot)}
}

func (s *mockSource) script(orderID int64, snap ports.OrderSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[orderID] = snap
}

func (s *mockSource) FetchOrderStatus(ctx context.Context, order *domain.Order) (ports.OrderSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fetchErr != nil {
		return ports.OrderSnapshot{}, s.fetchErr
	}
	if snap, ok := s.snapshots[order.ID]; ok {
		return snap, nil
	}
	return ports.OrderSnapshot{
		Status:       order.Status,
		Executed:     order.Executed,
		AveragePrice: order.AveragePrice,
		TotalTraded:  order.TotalTraded,
		FeesPaid:     order.FeesPaid,
	}, nil
}

func (s *mockSource) Cancel(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, order.ID)
	return s.cancelErr
}

func (s *mockSource) FillImmediately(ctx context.Context, order *domain.Order, candle *domain.Candle) error {
	price := order.Price
	if candle != nil {
		price = candle.Close
	}
	remaining := order.Quantity - order.Executed
	order.Status = domain.StatusFilled
	order.Executed = order.Quantity
	order.TotalTraded += remaining * price
	if order.Executed > 0 {
		order.AveragePrice = order.TotalTraded / order.Executed
	}
	return nil
}

// mockBalances counts refresh calls.
type mockBalances struct {
	mu       sync.Mutex
	refreshs int
}

func (b *mockBalances) RefreshBalances(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshs++
	return nil
}

func (b *mockBalances) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshs
}

// mockPolicy records lifecycle callbacks.
type mockPolicy struct {
	mu            sync.Mutex
	finalized     []int64
	updated       []int64
	unchanged     []int64
	abandoned     []int64
	releaseStale  bool
	abandonedErrs []error
}

func (p *mockPolicy) Finalized(ctx context.Context, order *domain.Order, trade ports.TradeView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finalized = append(p.finalized, order.ID)
}

func (p *mockPolicy) Updated(ctx context.Context, order *domain.Order, trade ports.TradeView, resubmit ports.ResubmitFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated = append(p.updated, order.ID)
}

func (p *mockPolicy) Unchanged(ctx context.Context, order *domain.Order, trade ports.TradeView, resubmit ports.ResubmitFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unchanged = append(p.unchanged, order.ID)
}

func (p *mockPolicy) CancelToReleaseFundsFor(ctx context.Context, order *domain.Order, ownerTrade, requestingTrade ports.TradeView) bool {
	return p.releaseStale
}

func (p *mockPolicy) Abandoned(ctx context.Context, order *domain.Order, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.abandoned = append(p.abandoned, order.ID)
	p.abandonedErrs = append(p.abandonedErrs, err)
}

func (p *mockPolicy) finalizedIDs() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.finalized...)
}

func (p *mockPolicy) abandonedIDs() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.abandoned...)
}

func (p *mockPolicy) updatedIDs() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.updated...)
}

func (p *mockPolicy) unchangedIDs() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.unchanged...)
}

// mockJournal records persisted trades and audited orders.
type mockJournal struct {
	mu      sync.Mutex
	records []*domain.TradeRecord
	audited []int64
}

func (j *mockJournal) RecordTrade(ctx context.Context, rec *domain.TradeRecord) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
	return int64(len(j.records)), nil
}

func (j *mockJournal) RecordOrder(ctx context.Context, order *domain.Order) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.audited = append(j.audited, order.ID)
	return nil
}

func (j *mockJournal) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.TradeRecord, error) {
	return nil, nil
}

func (j *mockJournal) TotalProfit(ctx context.Context) (float64, error) { return 0, nil }

type trackerFixture struct {
	tracker  *OrderTracker
	source   *mockSource
	balances *mockBalances
	policy   *mockPolicy
	journal  *mockJournal
}

func newSimulatedTracker(t *testing.T, opts ...func(*Config)) *trackerFixture {
	t.Helper()
	f := &trackerFixture{
		source:   newMockSource(),
		balances: &mockBalances{},
		policy:   &mockPolicy{},
		journal:  &mockJournal{},
	}
	cfg := Config{
		Symbol:    "ETHUSDT",
		Source:    f.source,
		Balances:  f.balances,
		Policy:    f.policy,
		Logger:    &mockLogger{},
		Journal:   f.journal,
		Simulated: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	tracker, err := NewOrderTracker(cfg)
	require.NoError(t, err)
	f.tracker = tracker
	return f
}

func newOrder(id int64, side domain.OrderSide, qty float64) *domain.Order {
	return &domain.Order{
		ID:          id,
		Symbol:      "ETHUSDT",
		AssetSymbol: "ETH",
		FundsSymbol: "USDT",
		Side:        side,
		TradeSide:   domain.Long,
		Status:      domain.StatusNew,
		Quantity:    qty,
		Time:        time.Now(),
		Active:      true,
	}
}

func TestNewOrderTracker_Validation(t *testing.T) {
	logger := &mockLogger{}
	source := newMockSource()

	_, err := NewOrderTracker(Config{Source: source, Balances: &mockBalances{}, Policy: &mockPolicy{}, Logger: logger})
	assert.ErrorIs(t, err, ports.ErrConfigurationError)

	_, err = NewOrderTracker(Config{Symbol: "ETHUSDT", Balances: &mockBalances{}, Policy: &mockPolicy{}, Logger: logger})
	assert.ErrorIs(t, err, ports.ErrMissingCollaborator)

	_, err = NewOrderTracker(Config{Symbol: "ETHUSDT", Source: source, Balances: &mockBalances{}, Policy: &mockPolicy{}, Logger: logger})
	assert.NoError(t, err)
}

func TestInitiateOrderMonitoring_RequiresTrade(t *testing.T) {
	f := newSimulatedTracker(t)
	order := newOrder(1, domain.Buy, 1)

	err := f.tracker.InitiateOrderMonitoring(context.Background(), order)
	assert.ErrorIs(t, err, ports.ErrNoTradeAssociated)
	assert.Empty(t, f.tracker.PendingOrders())
}

func TestSimulatedSweep_FillsPendingOrder(t *testing.T) {
	f := newSimulatedTracker(t)
	ctx := context.Background()
	candles := &stubCandles{}
	candles.set(10.0)

	buy := newOrder(1, domain.Buy, 10)
	trade, err := NewTrade(1, buy, TradeConfig{Candles: candles, Tracker: f.tracker, Logger: &mockLogger{}})
	require.NoError(t, err)
	buy.Trade = trade

	require.NoError(t, f.tracker.InitiateOrderMonitoring(ctx, buy))
	require.Len(t, f.tracker.PendingOrders(), 1)

	f.source.script(1, ports.OrderSnapshot{
		Status:       domain.StatusFilled,
		Executed:     10,
		AveragePrice: 10,
		TotalTraded:  100,
	})
	f.tracker.UpdateOpenOrders(ctx)

	assert.Empty(t, f.tracker.PendingOrders())
	assert.Equal(t, domain.StatusFilled, buy.Status)
	assert.Equal(t, 10.0, buy.Executed)
	assert.Equal(t, []int64{1}, f.policy.finalizedIDs())
	assert.Greater(t, f.balances.count(), 0)
}

func TestSimulatedSweep_JournalsFinalizedTradeOnce(t *testing.T) {
	f := newSimulatedTracker(t)
	ctx := context.Background()
	candles := &stubCandles{}
	candles.set(10.0)

	buy := filledOrder(1, domain.Buy, 10, 100, 0)
	trade, err := NewTrade(1, buy, TradeConfig{Candles: candles, Tracker: f.tracker, Logger: &mockLogger{}})
	require.NoError(t, err)

	sell := newOrder(2, domain.Sell, 10)
	require.NoError(t, trade.DecreasePosition(sell, domain.ExitReasonTakeProfit))

	require.NoError(t, f.tracker.InitiateOrderMonitoring(ctx, sell))
	f.source.script(2, ports.OrderSnapshot{
		Status:       domain.StatusFilled,
		Executed:     10,
		AveragePrice: 11,
		TotalTraded:  110,
	})
	f.tracker.UpdateOpenOrders(ctx)

	require.True(t, trade.IsFinalized())
	require.Len(t, f.journal.records, 1)
	rec := f.journal.records[0]
	assert.Equal(t, int64(1), rec.TradeID)
	assert.InDelta(t, 10.0, rec.ProfitLoss, 1e-9)
	assert.Equal(t, []int64{2}, f.journal.audited)

	// A second sweep over the same state must not journal again.
	f.tracker.UpdateOpenOrders(ctx)
	assert.Len(t, f.journal.records, 1)
}

func TestCancelOrder_FinalizesLocallyDespiteExchangeError(t *testing.T) {
	f := newSimulatedTracker(t)
	f.source.cancelErr = errors.New("exchange down")
	ctx := context.Background()

	order := newOrder(1, domain.Buy, 10)
	f.tracker.WaitForFill(ctx, order)
	require.Len(t, f.tracker.PendingOrders(), 1)

	f.tracker.CancelOrder(ctx, order, false)

	assert.Equal(t, domain.StatusCancelled, order.Status)
	assert.Empty(t, f.tracker.PendingOrders())
	assert.Equal(t, []int64{1}, f.source.cancelled)
	assert.Equal(t, []int64{1}, f.policy.finalizedIDs())
}

func TestCancelOrder_UnknownOrderIsNoopWithoutForce(t *testing.T) {
	f := newSimulatedTracker(t)
	ctx := context.Background()

	order := newOrder(1, domain.Buy, 10)
	f.tracker.CancelOrder(ctx, order, false)
	assert.Equal(t, domain.StatusNew, order.Status)
	assert.Empty(t, f.source.cancelled)

	f.tracker.CancelOrder(ctx, order, true)
	assert.Equal(t, domain.StatusCancelled, order.Status)
}

func TestSimulatedSweep_ReportsUpdatedAndUnchanged(t *testing.T) {
	f := newSimulatedTracker(t)
	ctx := context.Background()

	order := newOrder(1, domain.Buy, 10)
	f.tracker.WaitForFill(ctx, order)

	// Re-polling an order that did not move reports Unchanged and leaves
	// balances alone.
	f.tracker.UpdateOpenOrders(ctx)
	assert.Equal(t, []int64{1}, f.policy.unchangedIDs())
	assert.Empty(t, f.policy.updatedIDs())
	assert.Zero(t, f.balances.count())

	// A partial fill reports Updated, refreshes balances and consumes the
	// partial-fill detail.
	f.source.script(1, ports.OrderSnapshot{
		Status:              domain.StatusPartiallyFilled,
		Executed:            4,
		AveragePrice:        10,
		TotalTraded:         40,
		PartialFillQuantity: 4,
		PartialFillPrice:    10,
	})
	f.tracker.UpdateOpenOrders(ctx)

	assert.Equal(t, []int64{1}, f.policy.updatedIDs())
	assert.Equal(t, []int64{1}, f.policy.unchangedIDs(), "no further Unchanged once the order moved")
	assert.Equal(t, 1, f.balances.count())
	assert.False(t, order.HasPartialFillDetails(), "partial-fill detail consumed by the diff")
	assert.Equal(t, domain.StatusPartiallyFilled, order.Status)
	assert.Len(t, f.tracker.PendingOrders(), 1, "partially filled order stays pending")
}

func TestCascadeCancellation_NotifiesAttachmentsOnce(t *testing.T) {
	f := newSimulatedTracker(t)
	ctx := context.Background()

	parent := newOrder(1, domain.Buy, 10)
	stop := newOrder(2, domain.Sell, 10)
	takeProfit := newOrder(3, domain.Sell, 10)
	parent.Attach(stop)
	parent.Attach(takeProfit)

	f.tracker.WaitForFill(ctx, parent)
	f.source.script(1, ports.OrderSnapshot{Status: domain.StatusCancelled})
	f.tracker.UpdateOpenOrders(ctx)

	assert.Equal(t, domain.StatusCancelled, parent.Status)
	assert.Equal(t, domain.StatusCancelled, stop.Status)
	assert.Equal(t, domain.StatusCancelled, takeProfit.Status)

	finalized := f.policy.finalizedIDs()
	assert.ElementsMatch(t, []int64{1, 2, 3}, finalized, "each order notified exactly once")
}

func TestCascadeCancellation_RemovesTrackedAttachmentFromPending(t *testing.T) {
	f := newSimulatedTracker(t)
	ctx := context.Background()

	parent := newOrder(1, domain.Buy, 10)
	stop := newOrder(2, domain.Sell, 10)
	parent.Attach(stop)

	f.tracker.WaitForFill(ctx, parent)
	f.tracker.WaitForFill(ctx, stop)

	f.source.script(1, ports.OrderSnapshot{Status: domain.StatusCancelled})
	f.tracker.UpdateOpenOrders(ctx)

	assert.Equal(t, domain.StatusCancelled, stop.Status)
	assert.Empty(t, f.tracker.PendingOrders(), "cascaded attachment must leave the pending registry")
}

func TestCascadeCancellation_SkipsPartiallyFilledParent(t *testing.T) {
	f := newSimulatedTracker(t)
	ctx := context.Background()

	parent := newOrder(1, domain.Buy, 10)
	stop := newOrder(2, domain.Sell, 10)
	parent.Attach(stop)

	f.tracker.WaitForFill(ctx, parent)
	f.source.script(1, ports.OrderSnapshot{
		Status:       domain.StatusCancelled,
		Executed:     4,
		AveragePrice: 10,
		TotalTraded:  40,
	})
	f.tracker.UpdateOpenOrders(ctx)

	assert.Equal(t, domain.StatusCancelled, parent.Status)
	assert.Equal(t, domain.StatusNew, stop.Status, "partial fill keeps the protective order alive")
}

func TestGetOrder_ConsumesFinalized(t *testing.T) {
	f := newSimulatedTracker(t)
	ctx := context.Background()

	order := newOrder(1, domain.Buy, 10)
	f.tracker.WaitForFill(ctx, order)
	f.source.script(1, ports.OrderSnapshot{
		Status:       domain.StatusFilled,
		Executed:     10,
		AveragePrice: 10,
		TotalTraded:  100,
	})
	f.tracker.UpdateOpenOrders(ctx)

	lookup := &domain.Order{ID: 1}
	got := f.tracker.GetOrder(lookup)
	assert.Same(t, order, got)

	// Finalized orders are consumed on read.
	again := f.tracker.GetOrder(lookup)
	assert.Same(t, lookup, again)
}

func TestWaitingForFill_SymbolInversion(t *testing.T) {
	f := newSimulatedTracker(t)
	ctx := context.Background()

	sell := newOrder(1, domain.Sell, 10)
	sell.Symbol = "ADABTC"
	sell.AssetSymbol = "ADA"
	sell.FundsSymbol = "BTC"
	f.tracker.WaitForFill(ctx, sell)

	assert.True(t, f.tracker.WaitingForFill("ADA", domain.Sell, domain.Long))
	assert.False(t, f.tracker.WaitingForFill("ADA", domain.Buy, domain.Long))
	assert.True(t, f.tracker.WaitingForFill("BTC", domain.Buy, domain.Long), "selling ADA holds the BTC a new buy would need")
	assert.False(t, f.tracker.WaitingForFill("BTC", domain.Buy, domain.Short))
}

func TestStaleOrderSweep_AcrossDirectory(t *testing.T) {
	directory := NewDirectory()
	eth := newSimulatedTracker(t, func(cfg *Config) {
		cfg.Symbol = "ETHUSDT"
		cfg.Directory = directory
	})
	btc := newSimulatedTracker(t, func(cfg *Config) {
		cfg.Symbol = "BTCUSDT"
		cfg.Directory = directory
	})
	btc.policy.releaseStale = true
	ctx := context.Background()

	stale := newOrder(10, domain.Buy, 5)
	stale.Symbol = "BTCUSDT"
	btc.tracker.WaitForFill(ctx, stale)

	// The sweep starts from the ETH tracker and must only touch siblings.
	own := newOrder(11, domain.Buy, 5)
	eth.tracker.WaitForFill(ctx, own)

	eth.tracker.CancelStaleOrdersFor(ctx, domain.Long, nil)

	assert.Equal(t, domain.StatusCancelled, stale.Status)
	assert.Equal(t, domain.StatusNew, own.Status, "own symbol is excluded from the sweep")
}

func TestLiquidateOrder_SimulationOnly(t *testing.T) {
	f := newSimulatedTracker(t)
	ctx := context.Background()
	candle := &domain.Candle{Close: 12.0, CloseTime: time.Now()}

	order := newOrder(1, domain.Sell, 10)
	f.tracker.WaitForFill(ctx, order)
	f.tracker.LiquidateOrder(ctx, order, candle)

	assert.Equal(t, domain.StatusFilled, order.Status)
	assert.Equal(t, 10.0, order.Executed)
	assert.InDelta(t, 120.0, order.TotalTraded, 1e-9)
	assert.Empty(t, f.tracker.PendingOrders())
}

func TestMonitorOrder_LivePollingFinalizes(t *testing.T) {
	f := newSimulatedTracker(t, func(cfg *Config) {
		cfg.Simulated = false
		cfg.PollInterval = time.Millisecond
		cfg.PollBackoffMin = time.Millisecond
		cfg.PollBackoffMax = 2 * time.Millisecond
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	order := newOrder(1, domain.Buy, 10)
	f.source.script(1, ports.OrderSnapshot{
		Status:       domain.StatusFilled,
		Executed:     10,
		AveragePrice: 10,
		TotalTraded:  100,
	})
	f.tracker.WaitForFill(ctx, order)
	f.tracker.Wait()

	assert.Equal(t, domain.StatusFilled, order.Status)
	assert.Empty(t, f.tracker.PendingOrders())
	assert.Equal(t, []int64{1}, f.policy.finalizedIDs())
}

func TestMonitorOrder_AbandonsAfterRepeatedFailures(t *testing.T) {
	f := newSimulatedTracker(t, func(cfg *Config) {
		cfg.Simulated = false
		cfg.PollInterval = time.Millisecond
		cfg.PollBackoffMin = time.Millisecond
		cfg.PollBackoffMax = 2 * time.Millisecond
		cfg.MaxPollRetries = 2
	})
	f.source.fetchErr = errors.New("exchange down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	order := newOrder(1, domain.Buy, 10)
	f.tracker.WaitForFill(ctx, order)
	f.tracker.Wait()

	assert.Equal(t, []int64{1}, f.policy.abandonedIDs())
	// The order stays pending locally; operators decide what happens next.
	assert.Len(t, f.tracker.PendingOrders(), 1)
}

func TestCancelAllOrders(t *testing.T) {
	f := newSimulatedTracker(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		f.tracker.WaitForFill(ctx, newOrder(i, domain.Buy, 1))
	}
	require.Len(t, f.tracker.PendingOrders(), 3)

	f.tracker.CancelAllOrders(ctx)
	assert.Empty(t, f.tracker.PendingOrders())
	assert.Len(t, f.policy.finalizedIDs(), 3)
}

func TestOpenTrade_RequiresCandleSource(t *testing.T) {
	f := newSimulatedTracker(t)

	_, err := f.tracker.OpenTrade(context.Background(), newOrder(1, domain.Buy, 1))
	assert.ErrorIs(t, err, ports.ErrMissingCollaborator)
}

func TestOpenTrade_UsesConfiguredDefaults(t *testing.T) {
	candles := &stubCandles{}
	candles.set(10.0)
	monitor := &mockMonitor{}
	f := newSimulatedTracker(t, func(cfg *Config) {
		cfg.Candles = candles
		cfg.Monitors = []ports.TradeMonitor{monitor}
		cfg.TradeSettings = Settings{ExitThresholdPct: 50, MinOrderValue: 1}
	})
	ctx := context.Background()

	buy := filledOrder(1, domain.Buy, 10, 100, 0)
	trade, err := f.tracker.OpenTrade(ctx, buy)
	require.NoError(t, err)
	assert.Equal(t, int64(1), trade.ID())
	assert.Same(t, trade, buy.Trade)

	// The configured exit threshold applies: closing half the position
	// finalizes the trade.
	sell := newOrder(2, domain.Sell, 5)
	require.NoError(t, trade.DecreasePosition(sell, domain.ExitReasonManual))
	require.NoError(t, f.tracker.InitiateOrderMonitoring(ctx, sell))
	f.source.script(2, ports.OrderSnapshot{
		Status:       domain.StatusFilled,
		Executed:     5,
		AveragePrice: 11,
		TotalTraded:  55,
	})
	f.tracker.UpdateOpenOrders(ctx)
	assert.True(t, trade.IsFinalized())

	// Trade IDs are assigned sequentially per tracker.
	second, err := f.tracker.OpenTrade(ctx, filledOrder(3, domain.Buy, 1, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.ID())
}
