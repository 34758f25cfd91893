package domain

import "time"

// TradeRecord represents a finalized trade as persisted in the journal.
type TradeRecord struct {
	ID            int64     // Unique identifier for the record (usually from DB)
	TradeID       int64     // Identifier of the trade aggregate
	Symbol        string    // Trading pair
	Side          TradeSide // LONG or SHORT
	EntryPrice    float64   // Fee-adjusted average entry price
	ExitPrice     float64   // Average exit price
	Quantity      float64   // Quantity exited at finalization
	ProfitLoss    float64   // Realized profit and loss (funds currency)
	ProfitLossPct float64   // Realized profit and loss percentage
	MaxPrice      float64   // Highest close seen while the trade was open
	MinPrice      float64   // Lowest close seen while the trade was open
	Ticks         int       // Candles processed while the trade was open
	OpenTime      time.Time // Close time of the first candle observed
	CloseTime     time.Time // Close time of the last candle observed
	ExitReason    string    // First stop reason recorded, if any
}
