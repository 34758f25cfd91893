package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"cryptoTradeEngine/internal/domain"
	"cryptoTradeEngine/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/jpillora/backoff"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	defaultReconnectDelay       = 5 * time.Second
	defaultMaxReconnectAttempts = 5
)

// Client implements ports.OrderStatusSource and ports.BalanceRefresher using
// the go-binance library.
type Client struct {
	futuresClient        *futures.Client
	logger               ports.Logger
	requestDelay         time.Duration
	reconnectDelay       time.Duration
	maxReconnectAttempts int

	balanceMu sync.RWMutex
	balances  map[string]float64
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	Logger               ports.Logger
	RequestDelay         time.Duration // Minimum delay between polling requests
	ReconnectDelay       time.Duration // Initial delay between WebSocket reconnection attempts
	MaxReconnectAttempts int
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}

	return &Client{
		futuresClient:        client,
		logger:               cfg.Logger,
		requestDelay:         cfg.RequestDelay,
		reconnectDelay:       cfg.ReconnectDelay,
		maxReconnectAttempts: cfg.MaxReconnectAttempts,
		balances:             make(map[string]float64),
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		// Map specific Binance error codes to custom errors
		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2011: // Cancel order rejected
			mappedErr = ports.ErrOrderCancelFailed
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2014: // API-key format invalid
			mappedErr = ports.ErrInvalidAPIKeys
		case -2015: // Invalid API-key, IP, or permissions for action
			mappedErr = ports.ErrInvalidAPIKeys
		case -2019, -3005, -3041: // Insufficient margin/balance/position
			mappedErr = ports.ErrInsufficientFunds
		case -4003, -4014, -4015: // Qty/price/leverage not within permissible range
			mappedErr = ports.ErrInvalidRequest
		default:
			// General classification for unmapped API errors
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// translateStatus maps a Binance order status onto the domain status set.
// Rejected and expired orders count as cancelled: nothing further will fill.
func translateStatus(status futures.OrderStatusType) domain.OrderStatus {
	switch status {
	case futures.OrderStatusTypeNew:
		return domain.StatusNew
	case futures.OrderStatusTypePartiallyFilled:
		return domain.StatusPartiallyFilled
	case futures.OrderStatusTypeFilled:
		return domain.StatusFilled
	case futures.OrderStatusTypeCanceled, futures.OrderStatusTypeRejected, futures.OrderStatusTypeExpired:
		return domain.StatusCancelled
	default:
		return domain.StatusNew
	}
}

// FetchOrderStatus retrieves the current state of the given order.
func (c *Client) FetchOrderStatus(ctx context.Context, order *domain.Order) (ports.OrderSnapshot, error) {
	op := "FetchOrderStatus"

	res, err := c.futuresClient.NewGetOrderService().
		Symbol(order.Symbol).
		OrderID(order.ID).
		Do(ctx)
	if err != nil {
		return ports.OrderSnapshot{}, c.handleError(ctx, err, op)
	}

	executed, err := strconv.ParseFloat(res.ExecutedQuantity, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse executed quantity '%s': %w", res.ExecutedQuantity, err)
		return ports.OrderSnapshot{}, c.handleError(ctx, parseErr, op)
	}
	avgPrice, err := strconv.ParseFloat(res.AvgPrice, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse average price '%s': %w", res.AvgPrice, err)
		return ports.OrderSnapshot{}, c.handleError(ctx, parseErr, op)
	}
	totalTraded, err := strconv.ParseFloat(res.CumQuote, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse cumulative quote '%s': %w", res.CumQuote, err)
		return ports.OrderSnapshot{}, c.handleError(ctx, parseErr, op)
	}

	snap := ports.OrderSnapshot{
		Status:       translateStatus(res.Status),
		Executed:     executed,
		AveragePrice: avgPrice,
		TotalTraded:  totalTraded,
		// The order endpoint does not report commissions; keep the local figure.
		FeesPaid: order.FeesPaid,
	}

	c.logger.Debug(ctx, op+" successful", map[string]interface{}{
		"symbol":   order.Symbol,
		"orderID":  order.ID,
		"status":   snap.Status,
		"executed": snap.Executed,
	})

	if c.requestDelay > 0 {
		select {
		case <-time.After(c.requestDelay):
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
	return snap, nil
}

// Cancel requests cancellation of an open order on Binance. An order that no
// longer exists on the exchange is treated as already gone.
func (c *Client) Cancel(ctx context.Context, order *domain.Order) error {
	op := "Cancel"
	c.logger.Debug(ctx, "Attempting to cancel order", map[string]interface{}{"symbol": order.Symbol, "orderID": order.ID})

	_, err := c.futuresClient.NewCancelOrderService().
		Symbol(order.Symbol).
		OrderID(order.ID).
		Do(ctx)
	if err != nil {
		translated := c.handleError(ctx, err, op)
		if errors.Is(translated, ports.ErrOrderNotFound) {
			c.logger.Warn(ctx, op+": order already gone on exchange", map[string]interface{}{"symbol": order.Symbol, "orderID": order.ID})
			return nil
		}
		return translated
	}

	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": order.Symbol, "orderID": order.ID})
	return nil
}

// FillImmediately is a simulation-only operation; a live source refuses it.
func (c *Client) FillImmediately(ctx context.Context, order *domain.Order, candle *domain.Candle) error {
	return fmt.Errorf("FillImmediately is not supported on a live exchange: %w", ports.ErrInvalidRequest)
}

// RefreshBalances pulls the account snapshot and caches wallet balances per asset.
func (c *Client) RefreshBalances(ctx context.Context) error {
	op := "RefreshBalances"
	account, err := c.futuresClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}

	fresh := make(map[string]float64, len(account.Assets))
	for _, bal := range account.Assets {
		balance, err := strconv.ParseFloat(bal.WalletBalance, 64)
		if err != nil {
			parseErr := fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.WalletBalance, bal.Asset, err)
			return c.handleError(ctx, parseErr, op)
		}
		fresh[bal.Asset] = balance
	}

	c.balanceMu.Lock()
	c.balances = fresh
	c.balanceMu.Unlock()

	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"assets": len(fresh)})
	return nil
}

// Balance returns the last cached wallet balance for the asset.
func (c *Client) Balance(asset string) float64 {
	c.balanceMu.RLock()
	defer c.balanceMu.RUnlock()
	return c.balances[asset]
}

// CandleCache retains the most recent candle delivered by StreamCandles. It
// satisfies ports.CandleSource for trades opened against the live exchange.
type CandleCache struct {
	mu     sync.RWMutex
	latest *domain.Candle
}

// Push makes candle the latest one observed.
func (c *CandleCache) Push(candle *domain.Candle) {
	c.mu.Lock()
	c.latest = candle
	c.mu.Unlock()
}

// LatestCandle returns the most recently pushed candle.
func (c *CandleCache) LatestCandle() *domain.Candle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest
}

// StreamCandles subscribes to the kline WebSocket stream for the symbol and
// interval and delivers every candle update to handler. The connection is
// re-established with backoff after drops; the goroutine exits when ctx is
// cancelled or consecutive connection attempts exceed the configured cap.
func (c *Client) StreamCandles(ctx context.Context, symbol, interval string, handler func(candle *domain.Candle)) {
	op := "StreamCandles"

	wsHandler := func(event *futures.WsKlineEvent) {
		candle, err := translateWsCandle(event)
		if err != nil {
			c.logger.Error(ctx, err, op+": Failed to translate kline event")
			return
		}
		handler(candle)
	}
	wsErrHandler := func(err error) {
		c.logger.Warn(ctx, op+": WebSocket error reported", map[string]interface{}{"symbol": symbol, "error": err.Error()})
	}

	go func() {
		b := &backoff.Backoff{Min: c.reconnectDelay, Max: time.Minute, Jitter: true}
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			doneCh, stopCh, err := futures.WsKlineServe(symbol, interval, wsHandler, wsErrHandler)
			if err != nil {
				c.handleError(ctx, err, op+" connection attempt")
				if int(b.Attempt()) >= c.maxReconnectAttempts {
					c.logger.Error(ctx, err, op+": Max reconnection attempts exceeded, giving up", map[string]interface{}{"symbol": symbol, "interval": interval})
					return
				}
				select {
				case <-time.After(b.Duration()):
					continue
				case <-ctx.Done():
					return
				}
			}
			b.Reset()
			c.logger.Info(ctx, op+": WebSocket connection established", map[string]interface{}{"symbol": symbol, "interval": interval})

			select {
			case <-doneCh:
				c.logger.Warn(ctx, op+": WebSocket connection closed, reconnecting", map[string]interface{}{"symbol": symbol, "interval": interval})
			case <-ctx.Done():
				select {
				case stopCh <- struct{}{}:
				default:
				}
				return
			}
		}
	}()
}

// FetchCandles retrieves the most recent klines for the symbol, oldest first.
// Used to prime a CandleCache before the stream delivers its first event.
func (c *Client) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.Candle, error) {
	op := "FetchCandles"
	klines, err := c.futuresClient.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	candles := make([]*domain.Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := translateKline(k, symbol)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func translateWsCandle(event *futures.WsKlineEvent) (*domain.Candle, error) {
	if event == nil {
		return nil, errors.New("received nil kline event")
	}
	k := event.Kline
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", k.Low, err)
	}
	cls, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", k.Close, err)
	}
	vol, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", k.Volume, err)
	}

	return &domain.Candle{
		OpenTime:  time.UnixMilli(k.StartTime),
		CloseTime: time.UnixMilli(k.EndTime),
		Symbol:    k.Symbol,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
		IsFinal:   k.IsFinal,
	}, nil
}

func translateKline(k *futures.Kline, symbol string) (*domain.Candle, error) {
	if k == nil {
		return nil, errors.New("received nil kline")
	}
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", k.Open, err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", k.High, err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", k.Low, err)
	}
	cls, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", k.Close, err)
	}
	vol, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", k.Volume, err)
	}

	return &domain.Candle{
		OpenTime:  time.UnixMilli(k.OpenTime),
		CloseTime: time.UnixMilli(k.CloseTime),
		Symbol:    symbol,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
		IsFinal:   true,
	}, nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	err := c.futuresClient.NewPingService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// SetServerTime synchronizes the client's time with the server's time.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	_, err := c.futuresClient.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}
