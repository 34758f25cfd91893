package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cryptoTradeEngine/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Trading Parameters
	Symbol         string
	CandleInterval string // Kline interval driving the candle feed (e.g. "1m")
	Simulated      bool   // Run against the simulated fill source instead of the exchange

	// Trade Lifecycle Parameters
	ExitThresholdPct float64 // Exit percentage at which a trade is considered closed
	MinOrderValue    float64 // Funds value below which a remainder is treated as dust
	FeeRatePct       float64 // Fee percentage charged per fill (simulation)

	// Order Monitoring
	PollInterval   time.Duration // Delay between order status polls
	PollBackoffMin time.Duration // Initial retry delay after a failed poll
	PollBackoffMax time.Duration // Retry delay ceiling
	MaxPollRetries int           // Consecutive failures before the order is abandoned
	MaxOrderAge    time.Duration // Age past which an unfilled order is considered stale

	// Risk Parameters
	StopLossPct      float64       // Loss percentage at which monitors signal an exit
	TakeProfitPct    float64       // Profit percentage at which monitors signal an exit
	MaxTradeDuration time.Duration // Maximum time a trade may stay open (0 disables)

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
	cfg.Simulated = getEnvAsBool("SIMULATED", false)

	// API keys are only needed against the real exchange
	if !cfg.Simulated {
		if cfg.APIKey == "" {
			errs = append(errs, "BINANCE_API_KEY must be set")
		}
		if cfg.SecretKey == "" {
			errs = append(errs, "BINANCE_API_SECRET must be set")
		}
	}

	// Trading Parameters
	cfg.Symbol = getEnv("SYMBOL", "ETHUSDT")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}
	cfg.CandleInterval = getEnv("CANDLE_INTERVAL", "1m")

	// Trade Lifecycle Parameters
	cfg.ExitThresholdPct, err = getEnvAsFloatRequired("EXIT_THRESHOLD_PCT", 98.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid EXIT_THRESHOLD_PCT: %v", err))
	} else if cfg.ExitThresholdPct <= 0 || cfg.ExitThresholdPct > 100 {
		errs = append(errs, "EXIT_THRESHOLD_PCT must be between 0 and 100")
	}

	cfg.MinOrderValue, err = getEnvAsFloatRequired("MIN_ORDER_VALUE", 10.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_ORDER_VALUE: %v", err))
	} else if cfg.MinOrderValue < 0 {
		errs = append(errs, "MIN_ORDER_VALUE cannot be negative")
	}

	cfg.FeeRatePct, err = getEnvAsFloatRequired("FEE_RATE_PCT", 0.1)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FEE_RATE_PCT: %v", err))
	} else if cfg.FeeRatePct < 0 {
		errs = append(errs, "FEE_RATE_PCT cannot be negative")
	}

	// Order Monitoring
	pollIntervalSeconds := getEnvAsInt("POLL_INTERVAL_SECONDS", 30)
	if pollIntervalSeconds <= 0 {
		errs = append(errs, "POLL_INTERVAL_SECONDS must be positive")
	}
	cfg.PollInterval = time.Duration(pollIntervalSeconds) * time.Second

	backoffMinSeconds := getEnvAsInt("POLL_BACKOFF_MIN_SECONDS", 1)
	if backoffMinSeconds <= 0 {
		errs = append(errs, "POLL_BACKOFF_MIN_SECONDS must be positive")
	}
	cfg.PollBackoffMin = time.Duration(backoffMinSeconds) * time.Second

	backoffMaxSeconds := getEnvAsInt("POLL_BACKOFF_MAX_SECONDS", 60)
	if backoffMaxSeconds < backoffMinSeconds {
		errs = append(errs, "POLL_BACKOFF_MAX_SECONDS must be at least POLL_BACKOFF_MIN_SECONDS")
	}
	cfg.PollBackoffMax = time.Duration(backoffMaxSeconds) * time.Second

	cfg.MaxPollRetries = getEnvAsInt("MAX_POLL_RETRIES", 5)
	if cfg.MaxPollRetries <= 0 {
		errs = append(errs, "MAX_POLL_RETRIES must be positive")
	}

	maxOrderAgeMinutes := getEnvAsInt("MAX_ORDER_AGE_MINUTES", 10)
	if maxOrderAgeMinutes <= 0 {
		errs = append(errs, "MAX_ORDER_AGE_MINUTES must be positive")
	}
	cfg.MaxOrderAge = time.Duration(maxOrderAgeMinutes) * time.Minute

	// Risk Parameters
	cfg.StopLossPct, err = getEnvAsFloatRequired("STOP_LOSS_PCT", 2.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS_PCT: %v", err))
	} else if cfg.StopLossPct <= 0 {
		errs = append(errs, "STOP_LOSS_PCT must be positive")
	}

	cfg.TakeProfitPct, err = getEnvAsFloatRequired("TAKE_PROFIT_PCT", 4.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TAKE_PROFIT_PCT: %v", err))
	} else if cfg.TakeProfitPct <= 0 {
		errs = append(errs, "TAKE_PROFIT_PCT must be positive")
	}

	maxTradeDurationMinutes := getEnvAsInt("MAX_TRADE_DURATION_MINUTES", 0)
	if maxTradeDurationMinutes < 0 {
		errs = append(errs, "MAX_TRADE_DURATION_MINUTES cannot be negative")
	}
	cfg.MaxTradeDuration = time.Duration(maxTradeDurationMinutes) * time.Minute

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/trade_engine.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
