package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cryptoTradeEngine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}
func (m *mockLogger) Fatal(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Journal, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "trade-engine-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	journal, err := NewJournal(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		journal.Close()
		os.RemoveAll(tmpDir)
	}

	return journal, cleanup
}

func sampleRecord(tradeID int64, symbol string, pnl float64) *domain.TradeRecord {
	openTime := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	return &domain.TradeRecord{
		TradeID:       tradeID,
		Symbol:        symbol,
		Side:          domain.Long,
		EntryPrice:    100.0,
		ExitPrice:     110.0,
		Quantity:      1.5,
		ProfitLoss:    pnl,
		ProfitLossPct: pnl / 1.5,
		MaxPrice:      112.0,
		MinPrice:      98.0,
		Ticks:         42,
		OpenTime:      openTime,
		CloseTime:     openTime.Add(time.Hour),
		ExitReason:    domain.ExitReasonTakeProfit,
	}
}

func TestJournal_RecordAndFind(t *testing.T) {
	journal, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	rec := sampleRecord(1, "ETHUSDT", 15.0)
	id, err := journal.RecordTrade(ctx, rec)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
	assert.Equal(t, id, rec.ID)

	found, err := journal.FindBySymbol(ctx, "ETHUSDT", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)

	got := found[0]
	assert.Equal(t, rec.TradeID, got.TradeID)
	assert.Equal(t, rec.Symbol, got.Symbol)
	assert.Equal(t, domain.Long, got.Side)
	assert.InDelta(t, rec.EntryPrice, got.EntryPrice, 1e-9)
	assert.InDelta(t, rec.ExitPrice, got.ExitPrice, 1e-9)
	assert.InDelta(t, rec.ProfitLoss, got.ProfitLoss, 1e-9)
	assert.Equal(t, rec.Ticks, got.Ticks)
	assert.Equal(t, domain.ExitReasonTakeProfit, got.ExitReason)
}

func TestJournal_FindBySymbolFiltersAndLimits(t *testing.T) {
	journal, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		rec := sampleRecord(i, "ETHUSDT", float64(i))
		rec.OpenTime = rec.OpenTime.Add(time.Duration(i) * time.Minute)
		_, err := journal.RecordTrade(ctx, rec)
		require.NoError(t, err)
	}
	_, err := journal.RecordTrade(ctx, sampleRecord(6, "BTCUSDT", 1.0))
	require.NoError(t, err)

	found, err := journal.FindBySymbol(ctx, "ETHUSDT", 3)
	require.NoError(t, err)
	require.Len(t, found, 3)

	// Most recent first.
	assert.Equal(t, int64(5), found[0].TradeID)
	assert.Equal(t, int64(4), found[1].TradeID)
	assert.Equal(t, int64(3), found[2].TradeID)

	none, err := journal.FindBySymbol(ctx, "XRPUSDT", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestJournal_TotalProfit(t *testing.T) {
	journal, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	total, err := journal.TotalProfit(ctx)
	require.NoError(t, err)
	assert.Zero(t, total, "empty journal sums to zero")

	_, err = journal.RecordTrade(ctx, sampleRecord(1, "ETHUSDT", 15.0))
	require.NoError(t, err)
	_, err = journal.RecordTrade(ctx, sampleRecord(2, "BTCUSDT", -5.0))
	require.NoError(t, err)

	total, err = journal.TotalProfit(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, total, 1e-9)
}

func TestJournal_EmptyExitReasonStoredAsNull(t *testing.T) {
	journal, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	rec := sampleRecord(1, "ETHUSDT", 1.0)
	rec.ExitReason = ""
	_, err := journal.RecordTrade(ctx, rec)
	require.NoError(t, err)

	found, err := journal.FindBySymbol(ctx, "ETHUSDT", 1)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "", found[0].ExitReason)
}

func TestJournal_RecordOrderAudit(t *testing.T) {
	journal, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	order := &domain.Order{
		ID:           42,
		Symbol:       "ETHUSDT",
		Side:         domain.Sell,
		Type:         "LIMIT",
		Status:       domain.StatusFilled,
		Price:        110.0,
		Quantity:     1.5,
		Executed:     1.5,
		AveragePrice: 110.0,
		FeesPaid:     0.165,
		Time:         time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, journal.RecordOrder(ctx, order))

	var count int
	var status string
	var executed float64
	row := journal.db.QueryRowContext(ctx,
		`SELECT COUNT(*), status, executed FROM order_audit WHERE order_id = ?`, order.ID)
	require.NoError(t, row.Scan(&count, &status, &executed))
	assert.Equal(t, 1, count)
	assert.Equal(t, "FILLED", status)
	assert.InDelta(t, 1.5, executed, 1e-9)

	// Orders without a trade association audit with a NULL trade id.
	require.NoError(t, journal.RecordOrder(ctx, order))
	row = journal.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM order_audit WHERE order_id = ? AND trade_id IS NULL`, order.ID)
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 2, count)
}
