package ports

import (
	"context"

	"cryptoTradeEngine/internal/domain"
)

// ResubmitFunc re-places an order on the exchange. Handed to lifecycle
// policy callbacks so a policy can decide to resubmit a stale order.
type ResubmitFunc func(ctx context.Context, order *domain.Order)

// OrderLifecyclePolicy is consulted by the order tracker at each observed
// status transition. It owns operational decisions the core stays agnostic
// about: reacting to fills, resubmitting stale orders, and releasing funds
// held by competing orders.
type OrderLifecyclePolicy interface {
	// Finalized is invoked exactly once when an order reaches a terminal
	// status.
	Finalized(ctx context.Context, order *domain.Order, trade TradeView)

	// Updated is invoked when a poll observed a change in executed quantity.
	Updated(ctx context.Context, order *domain.Order, trade TradeView, resubmit ResubmitFunc)

	// Unchanged is invoked on an idempotent re-poll with no observable change.
	Unchanged(ctx context.Context, order *domain.Order, trade TradeView, resubmit ResubmitFunc)

	// CancelToReleaseFundsFor reports whether order, held by ownerTrade,
	// should be cancelled to release funds for requestingTrade.
	CancelToReleaseFundsFor(ctx context.Context, order *domain.Order, ownerTrade, requestingTrade TradeView) bool

	// Abandoned is invoked when polling for an order is given up after
	// exhausting retries. The order remains pending locally.
	Abandoned(ctx context.Context, order *domain.Order, err error)
}
