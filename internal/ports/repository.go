package ports

import (
	"context"

	"cryptoTradeEngine/internal/domain"
)

// TradeJournal defines the interface for persisting finalized trades.
type TradeJournal interface {
	// RecordTrade saves a finalized trade record and returns its assigned ID.
	RecordTrade(ctx context.Context, rec *domain.TradeRecord) (int64, error)
	// FindBySymbol retrieves the most recent trade records for a given symbol, up to a limit.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.TradeRecord, error)
	// TotalProfit calculates the sum of realized profit and loss across all records.
	TotalProfit(ctx context.Context) (float64, error)
	// RecordOrder appends a finalized order to the audit log.
	RecordOrder(ctx context.Context, order *domain.Order) error
}
