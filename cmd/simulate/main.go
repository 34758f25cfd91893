// Command simulate runs a scripted trade through the engine against the
// simulated fill source: open a LONG position, watch the price move, exit at
// market and report the realized result.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cryptoTradeEngine/internal/adapters/logger"
	"cryptoTradeEngine/internal/domain"
	"cryptoTradeEngine/internal/policy"
	"cryptoTradeEngine/internal/ports"
	"cryptoTradeEngine/internal/risk"
	"cryptoTradeEngine/internal/sim"
	"cryptoTradeEngine/internal/tracking"
)

func main() {
	var (
		symbol     = flag.String("symbol", "ETHUSDT", "Trading pair to simulate")
		quantity   = flag.Float64("quantity", 1.0, "Position quantity")
		entryPrice = flag.Float64("entry", 100.0, "Price of the first candle")
		feeRatePct = flag.Float64("fee", 0.1, "Fee percentage charged per fill")
		logLevel   = flag.String("log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	)
	flag.Parse()

	appLogger := logger.NewStdLogger(logger.ParseLevel(*logLevel))
	ctx := context.Background()

	feed := sim.NewFeed()
	emulator := sim.NewFillEmulator(feed, *feeRatePct)

	lifecycle := policy.New(policy.Config{Logger: appLogger})
	monitor := risk.NewMonitor(risk.Config{
		StopLossPct:   5.0,
		TakeProfitPct: 10.0,
	})
	tracker, err := tracking.NewOrderTracker(tracking.Config{
		Symbol:        *symbol,
		Source:        emulator,
		Balances:      sim.StaticBalances{},
		Policy:        lifecycle,
		Logger:        appLogger,
		Candles:       feed,
		Monitors:      []ports.TradeMonitor{monitor},
		TradeSettings: tracking.Settings{FeeRatePct: *feeRatePct},
		Simulated:     true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize order tracker: %v\n", err)
		os.Exit(1)
	}

	// Scripted price path: entry, a run-up, a pullback, exit.
	prices := []float64{*entryPrice, *entryPrice * 1.04, *entryPrice * 1.08, *entryPrice * 1.05}
	openTime := time.Now().Add(-time.Duration(len(prices)) * time.Minute)

	push := func(i int) *domain.Candle {
		c := &domain.Candle{
			OpenTime:  openTime.Add(time.Duration(i) * time.Minute),
			CloseTime: openTime.Add(time.Duration(i+1) * time.Minute),
			Symbol:    *symbol,
			Open:      prices[i],
			High:      prices[i] * 1.001,
			Low:       prices[i] * 0.999,
			Close:     prices[i],
			IsFinal:   true,
		}
		feed.Push(c)
		return c
	}
	push(0)

	buy := &domain.Order{
		ID:       1,
		Symbol:   *symbol,
		Side:     domain.Buy,
		Status:   domain.StatusNew,
		Quantity: *quantity,
		Time:     openTime,
	}
	trade, err := tracker.OpenTrade(ctx, buy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open trade: %v\n", err)
		os.Exit(1)
	}
	tracker.UpdateOpenOrders(ctx)

	for i := 1; i < len(prices); i++ {
		candle := push(i)
		if reason := trade.Tick(candle); reason != "" {
			appLogger.Info(ctx, "Monitor stopped the trade", map[string]interface{}{"reason": reason})
			break
		}
	}

	sell := &domain.Order{
		ID:       2,
		Symbol:   *symbol,
		Side:     domain.Sell,
		Status:   domain.StatusNew,
		Quantity: *quantity,
		Time:     time.Now(),
	}
	if err := trade.DecreasePosition(sell, domain.ExitReasonManual); err != nil {
		fmt.Fprintf(os.Stderr, "failed to submit exit order: %v\n", err)
		os.Exit(1)
	}
	if err := tracker.InitiateOrderMonitoring(ctx, sell); err != nil {
		fmt.Fprintf(os.Stderr, "failed to track exit order: %v\n", err)
		os.Exit(1)
	}
	tracker.UpdateOpenOrders(ctx)

	if !trade.IsFinalized() {
		appLogger.Warn(ctx, "Exit order did not fill, liquidating")
		trade.Liquidate(ctx)
	}

	rec := trade.Record()
	fmt.Printf("Simulation complete for %s\n", *symbol)
	fmt.Printf("  entry price:   %.4f\n", rec.EntryPrice)
	fmt.Printf("  exit price:    %.4f\n", rec.ExitPrice)
	fmt.Printf("  quantity:      %.4f\n", rec.Quantity)
	fmt.Printf("  max price:     %.4f\n", rec.MaxPrice)
	fmt.Printf("  min price:     %.4f\n", rec.MinPrice)
	fmt.Printf("  ticks:         %d\n", rec.Ticks)
	fmt.Printf("  P&L:           %.4f (%.2f%%)\n", rec.ProfitLoss, rec.ProfitLossPct)
}
