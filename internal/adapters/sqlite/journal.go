package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cryptoTradeEngine/internal/domain"
	"cryptoTradeEngine/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Journal implements the ports.TradeJournal interface using SQLite.
type Journal struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite journal.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewJournal creates a new SQLite journal instance.
func NewJournal(cfg Config) (*Journal, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite journal")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trade_engine.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Data directory checked/created", map[string]interface{}{"path": filepath.Dir(dbPath)})

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	journal := &Journal{db: db, logger: cfg.Logger}

	if err := journal.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite journal initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return journal, nil
}

// initializeSchema creates tables if they don't exist.
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (j *Journal) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trade_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		quantity REAL NOT NULL,
		pnl REAL NOT NULL,
		pnl_pct REAL NOT NULL,
		max_price REAL NOT NULL,
		min_price REAL NOT NULL,
		ticks INTEGER NOT NULL,
		open_time TIMESTAMP NOT NULL,
		close_time TIMESTAMP NOT NULL,
		exit_reason TEXT NULL
	);
	-- Add indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_trade_records_symbol_open_time ON trade_records (symbol, open_time);

	CREATE TABLE IF NOT EXISTS order_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id INTEGER NOT NULL,
		trade_id INTEGER NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		order_type TEXT NOT NULL,
		status TEXT NOT NULL,
		price REAL NOT NULL,
		quantity REAL NOT NULL,
		executed REAL NOT NULL,
		average_price REAL NOT NULL,
		fees_paid REAL NOT NULL,
		submitted_at TIMESTAMP NOT NULL,
		recorded_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_order_audit_symbol ON order_audit (symbol, recorded_at);
	`
	_, err := j.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db != nil {
		j.logger.Info(context.Background(), "Closing SQLite database connection")
		return j.db.Close()
	}
	return nil
}

// RecordTrade saves a finalized trade record and returns its assigned ID.
func (j *Journal) RecordTrade(ctx context.Context, rec *domain.TradeRecord) (int64, error) {
	const query = `
	INSERT INTO trade_records (trade_id, symbol, side, entry_price, exit_price, quantity,
	                           pnl, pnl_pct, max_price, min_price, ticks, open_time, close_time, exit_reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var exitReason sql.NullString
	if rec.ExitReason != "" {
		exitReason = sql.NullString{String: rec.ExitReason, Valid: true}
	}

	result, err := j.db.ExecContext(ctx, query,
		rec.TradeID, rec.Symbol, string(rec.Side), rec.EntryPrice, rec.ExitPrice, rec.Quantity,
		rec.ProfitLoss, rec.ProfitLossPct, rec.MaxPrice, rec.MinPrice, rec.Ticks,
		rec.OpenTime, rec.CloseTime, exitReason)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade record for symbol %s: %w", rec.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade record %s: %w", rec.Symbol, err)
	}
	rec.ID = id // Update the domain object with the ID
	j.logger.Debug(ctx, "Trade record created", map[string]interface{}{"recordID": id, "tradeID": rec.TradeID, "symbol": rec.Symbol, "pnl": rec.ProfitLoss})
	return id, nil
}

// FindBySymbol retrieves the most recent trade records for a given symbol, up to a limit.
func (j *Journal) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.TradeRecord, error) {
	const query = `
	SELECT id, trade_id, symbol, side, entry_price, exit_price, quantity,
	       pnl, pnl_pct, max_price, min_price, ticks, open_time, close_time, exit_reason
	FROM trade_records
	WHERE symbol = ? ORDER BY open_time DESC LIMIT ?`

	rows, err := j.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade records for symbol %s: %w", symbol, err)
	}
	defer rows.Close()

	records := make([]*domain.TradeRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade record during FindBySymbol: %w", err)
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade record rows: %w", err)
	}
	return records, nil
}

// TotalProfit calculates the sum of realized PNL across all records.
func (j *Journal) TotalProfit(ctx context.Context) (float64, error) {
	const query = `SELECT COALESCE(SUM(pnl), 0) FROM trade_records`
	var totalProfit float64
	err := j.db.QueryRowContext(ctx, query).Scan(&totalProfit)
	if err != nil {
		return 0, fmt.Errorf("failed to calculate total profit: %w", err)
	}
	return totalProfit, nil
}

// RecordOrder appends a finalized order to the audit log.
func (j *Journal) RecordOrder(ctx context.Context, order *domain.Order) error {
	const query = `
	INSERT INTO order_audit (order_id, trade_id, symbol, side, order_type, status,
	                         price, quantity, executed, average_price, fees_paid, submitted_at, recorded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var tradeID sql.NullInt64
	if order.Trade != nil {
		tradeID = sql.NullInt64{Int64: order.Trade.ID(), Valid: true}
	}

	_, err := j.db.ExecContext(ctx, query,
		order.ID, tradeID, order.Symbol, string(order.Side), order.Type, string(order.Status),
		order.Price, order.Quantity, order.Executed, order.AveragePrice, order.FeesPaid,
		order.Time, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert order audit row for order %d: %w", order.ID, err)
	}
	j.logger.Debug(ctx, "Order audit row created", map[string]interface{}{"orderID": order.ID, "symbol": order.Symbol, "status": string(order.Status)})
	return nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans a row into a domain.TradeRecord struct.
func scanRecord(s scanner) (*domain.TradeRecord, error) {
	rec := &domain.TradeRecord{}
	var side string
	var exitReason sql.NullString
	err := s.Scan(
		&rec.ID, &rec.TradeID, &rec.Symbol, &side, &rec.EntryPrice, &rec.ExitPrice, &rec.Quantity,
		&rec.ProfitLoss, &rec.ProfitLossPct, &rec.MaxPrice, &rec.MinPrice, &rec.Ticks,
		&rec.OpenTime, &rec.CloseTime, &exitReason)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	rec.Side = domain.TradeSide(side)
	if exitReason.Valid {
		rec.ExitReason = exitReason.String
	}
	return rec, nil
}
