// Package risk implements the built-in risk-management trade monitor.
package risk

import (
	"sync"
	"time"

	"cryptoTradeEngine/internal/domain"
	"cryptoTradeEngine/internal/ports"
)

// Config holds configuration for the risk monitor. Percentages are
// expressed the way trade statistics are: 1.5 means 1.5%.
type Config struct {
	StopLossPct      float64       // Adverse excursion that stops the trade (0 disables)
	TakeProfitPct    float64       // Favorable excursion that stops the trade (0 disables)
	MaxTradeDuration time.Duration // Maximum time a trade may stay open (0 disables)
	AllowSwitch      bool          // Whether funds may be reallocated to other instruments
}

// Monitor implements ports.TradeMonitor with stop-loss, take-profit and
// time-limit exits, and keeps per-trade excursion statistics.
type Monitor struct {
	config Config

	mu    sync.Mutex
	stats map[int64]*TradeStats
}

// TradeStats holds the excursion extremes observed for one trade.
type TradeStats struct {
	HighestProfitPct float64
	WorstLossPct     float64
	Buys             int
	Sells            int
}

// NewMonitor creates a risk monitor instance.
func NewMonitor(config Config) *Monitor {
	return &Monitor{
		config: config,
		stats:  make(map[int64]*TradeStats),
	}
}

func (m *Monitor) statsFor(id int64) *TradeStats {
	s, ok := m.stats[id]
	if !ok {
		s = &TradeStats{}
		m.stats[id] = s
	}
	return s
}

// Bought counts position-building buys.
func (m *Monitor) Bought(trade ports.TradeView, order *domain.Order) {
	m.mu.Lock()
	m.statsFor(trade.ID()).Buys++
	m.mu.Unlock()
}

// Sold counts position-reducing sells.
func (m *Monitor) Sold(trade ports.TradeView, order *domain.Order) {
	m.mu.Lock()
	m.statsFor(trade.ID()).Sells++
	m.mu.Unlock()
}

// HighestProfit records the best favorable excursion seen for the trade.
func (m *Monitor) HighestProfit(trade ports.TradeView, changePct float64) {
	m.mu.Lock()
	s := m.statsFor(trade.ID())
	if changePct > s.HighestProfitPct {
		s.HighestProfitPct = changePct
	}
	m.mu.Unlock()
}

// WorstLoss records the worst adverse excursion seen for the trade.
func (m *Monitor) WorstLoss(trade ports.TradeView, changePct float64) {
	m.mu.Lock()
	s := m.statsFor(trade.ID())
	if changePct < s.WorstLossPct {
		s.WorstLossPct = changePct
	}
	m.mu.Unlock()
}

// HandleStop stops the trade when the configured stop-loss, take-profit or
// time limit is breached. The first reason returned wins.
func (m *Monitor) HandleStop(trade ports.TradeView) string {
	change := trade.PriceChangePct()
	if m.config.StopLossPct > 0 && change <= -m.config.StopLossPct {
		return domain.ExitReasonStopLoss
	}
	if m.config.TakeProfitPct > 0 && change >= m.config.TakeProfitPct {
		return domain.ExitReasonTakeProfit
	}
	if m.config.MaxTradeDuration > 0 && trade.TradeDuration() >= m.config.MaxTradeDuration {
		return domain.ExitReasonTimeLimit
	}
	return ""
}

// AllowExit always permits exits; the monitor constrains entries and stops,
// never the ability to get out.
func (m *Monitor) AllowExit(trade ports.TradeView) bool {
	return true
}

// AllowTradeSwitch permits reallocating this trade's funds to another
// instrument only when configured to.
func (m *Monitor) AllowTradeSwitch(trade ports.TradeView, exitSymbol string, candle *domain.Candle, candleTicker string) bool {
	return m.config.AllowSwitch
}

// Stats returns a copy of the statistics recorded for a trade.
func (m *Monitor) Stats(tradeID int64) TradeStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.stats[tradeID]; ok {
		return *s
	}
	return TradeStats{}
}
