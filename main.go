package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"cryptoTradeEngine/config"
	"cryptoTradeEngine/internal/adapters/binanceclient"
	"cryptoTradeEngine/internal/adapters/logger"
	"cryptoTradeEngine/internal/adapters/sqlite"
	"cryptoTradeEngine/internal/policy"
	"cryptoTradeEngine/internal/ports"
	"cryptoTradeEngine/internal/risk"
	"cryptoTradeEngine/internal/sim"
	"cryptoTradeEngine/internal/tracking"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Journal (Database Adapter)
	journal, err := sqlite.NewJournal(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize trade journal")
		log.Fatalf("FATAL: Failed to initialize trade journal: %v", err) // Also log to stderr
	}
	defer func() {
		if err := journal.Close(); err != nil {
			appLogger.Error(context.Background(), err, "Error closing trade journal")
		}
	}()
	appLogger.Info(context.Background(), "Trade journal initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Initialize Order Status Source and Candle Feed (Binance or Simulation)
	var source ports.OrderStatusSource
	var balances ports.BalanceRefresher
	var candles ports.CandleSource
	if cfg.Simulated {
		feed := sim.NewFeed()
		source = sim.NewFillEmulator(feed, cfg.FeeRatePct)
		balances = sim.StaticBalances{}
		candles = feed
		appLogger.Info(ctx, "Simulated fill source initialized")
	} else {
		binanceClient, err := binanceclient.New(binanceclient.Config{
			APIKey:     cfg.APIKey,
			SecretKey:  cfg.SecretKey,
			UseTestnet: cfg.IsTestnet,
			Logger:     appLogger,
		})
		if err != nil {
			appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
			log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
		}
		if err := binanceClient.Ping(ctx); err != nil {
			appLogger.Error(ctx, err, "FATAL: Exchange is unreachable")
			log.Fatalf("FATAL: Exchange is unreachable: %v", err)
		}

		cache := &binanceclient.CandleCache{}
		if recent, err := binanceClient.FetchCandles(ctx, cfg.Symbol, cfg.CandleInterval, 1); err != nil {
			appLogger.Warn(ctx, "Could not prime candle cache, waiting for the stream", map[string]interface{}{"error": err.Error()})
		} else if len(recent) > 0 {
			cache.Push(recent[len(recent)-1])
		}
		binanceClient.StreamCandles(ctx, cfg.Symbol, cfg.CandleInterval, cache.Push)

		source = binanceClient
		balances = binanceClient
		candles = cache
		appLogger.Info(ctx, "Binance client initialized", map[string]interface{}{"interval": cfg.CandleInterval})
	}

	// 5. Initialize Lifecycle Policy and Risk Monitor
	lifecycle := policy.New(policy.Config{
		MaxOrderAge: cfg.MaxOrderAge,
		Logger:      appLogger,
	})
	monitor := risk.NewMonitor(risk.Config{
		StopLossPct:      cfg.StopLossPct,
		TakeProfitPct:    cfg.TakeProfitPct,
		MaxTradeDuration: cfg.MaxTradeDuration,
	})
	appLogger.Info(ctx, "Order lifecycle policy and risk monitor initialized")

	// 6. Initialize Tracker Directory and the Order Tracker
	directory := tracking.NewDirectory()
	tracker, err := tracking.NewOrderTracker(tracking.Config{
		Symbol:         cfg.Symbol,
		Source:         source,
		Balances:       balances,
		Policy:         lifecycle,
		Logger:         appLogger,
		Journal:        journal,
		Directory:      directory,
		Candles:        candles,
		Monitors:       []ports.TradeMonitor{monitor},
		TradeSettings: tracking.Settings{
			ExitThresholdPct: cfg.ExitThresholdPct,
			MinOrderValue:    cfg.MinOrderValue,
			FeeRatePct:       cfg.FeeRatePct,
		},
		Simulated:      cfg.Simulated,
		PollInterval:   cfg.PollInterval,
		PollBackoffMin: cfg.PollBackoffMin,
		PollBackoffMax: cfg.PollBackoffMax,
		MaxPollRetries: cfg.MaxPollRetries,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize order tracker")
		log.Fatalf("FATAL: Failed to initialize order tracker: %v", err)
	}
	appLogger.Info(ctx, "Order tracker initialized", map[string]interface{}{"symbol": cfg.Symbol})

	// 7. Run until interrupted
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	appLogger.Info(ctx, "Trade engine running, press Ctrl+C to stop")
	<-sigCh

	appLogger.Info(ctx, "Shutting down, cancelling pending orders")
	tracker.CancelAllOrders(ctx)
	cancel()
	tracker.Wait()

	totalProfit, err := journal.TotalProfit(context.Background())
	if err != nil {
		appLogger.Error(context.Background(), err, "Failed to read total profit")
	} else {
		appLogger.Info(context.Background(), "Session closed", map[string]interface{}{"totalProfit": totalProfit})
	}
	appLogger.Info(context.Background(), "Application finished gracefully.")
}
