// Package policy provides the default order-lifecycle policy: time-based
// stale-order handling and fund-release decisions.
package policy

import (
	"context"
	"time"

	"cryptoTradeEngine/internal/domain"
	"cryptoTradeEngine/internal/ports"
)

const defaultMaxOrderAge = 10 * time.Minute

// Config holds configuration for the default lifecycle policy.
type Config struct {
	// MaxOrderAge is how long an order may stay pending before it is
	// considered stale. Default 10 minutes.
	MaxOrderAge time.Duration
	// ResubmitStale resubmits orders that stayed unchanged past MaxOrderAge
	// instead of leaving them resting.
	ResubmitStale bool
	Logger        ports.Logger
}

// Default is the built-in ports.OrderLifecyclePolicy. It logs lifecycle
// events, optionally resubmits stale resting orders, and releases funds held
// by unfilled stale orders when a competing trade asks for them.
type Default struct {
	maxOrderAge   time.Duration
	resubmitStale bool
	logger        ports.Logger
	now           func() time.Time
}

// New creates the default policy.
func New(cfg Config) *Default {
	if cfg.MaxOrderAge <= 0 {
		cfg.MaxOrderAge = defaultMaxOrderAge
	}
	return &Default{
		maxOrderAge:   cfg.MaxOrderAge,
		resubmitStale: cfg.ResubmitStale,
		logger:        cfg.Logger,
		now:           time.Now,
	}
}

func (p *Default) age(order *domain.Order) time.Duration {
	if order.Time.IsZero() {
		return 0
	}
	return p.now().Sub(order.Time)
}

// Finalized logs the terminal status of the order.
func (p *Default) Finalized(ctx context.Context, order *domain.Order, trade ports.TradeView) {
	if p.logger == nil {
		return
	}
	fields := map[string]interface{}{
		"orderID":  order.ID,
		"symbol":   order.Symbol,
		"status":   order.Status,
		"executed": order.Executed,
	}
	if trade != nil {
		fields["tradeID"] = trade.ID()
	}
	p.logger.Info(ctx, "Order finalized", fields)
}

// Updated logs observed fill progress.
func (p *Default) Updated(ctx context.Context, order *domain.Order, trade ports.TradeView, resubmit ports.ResubmitFunc) {
	if p.logger != nil {
		p.logger.Info(ctx, "Order fill progress", map[string]interface{}{
			"orderID":  order.ID,
			"symbol":   order.Symbol,
			"executed": order.Executed,
			"quantity": order.Quantity,
		})
	}
}

// Unchanged resubmits the order once it has been resting unchanged past the
// stale age, when configured to.
func (p *Default) Unchanged(ctx context.Context, order *domain.Order, trade ports.TradeView, resubmit ports.ResubmitFunc) {
	if !p.resubmitStale || resubmit == nil {
		return
	}
	if p.age(order) <= p.maxOrderAge {
		return
	}
	if p.logger != nil {
		p.logger.Warn(ctx, "Resubmitting stale order", map[string]interface{}{
			"orderID": order.ID,
			"symbol":  order.Symbol,
			"age":     p.age(order).String(),
		})
	}
	resubmit(ctx, order)
}

// CancelToReleaseFundsFor releases funds held by an order that aged past
// half the stale age without any fill. Partially filled orders are left to
// complete.
func (p *Default) CancelToReleaseFundsFor(ctx context.Context, order *domain.Order, ownerTrade, requestingTrade ports.TradeView) bool {
	if order.Executed != 0 {
		return false
	}
	return p.age(order) > p.maxOrderAge/2
}

// Abandoned escalates a monitoring task that gave up after exhausting
// retries; the order is still pending locally and needs attention.
func (p *Default) Abandoned(ctx context.Context, order *domain.Order, err error) {
	if p.logger != nil {
		p.logger.Fatal(ctx, err, "Order monitoring abandoned; order left pending", map[string]interface{}{
			"orderID": order.ID,
			"symbol":  order.Symbol,
			"status":  order.Status,
		})
	}
}
