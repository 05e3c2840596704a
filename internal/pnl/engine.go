package pnl

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"
)

const (
	// DefaultLeverage is applied when no leverage is supplied at
	// construction. Leverage is a fixed engine-wide constant, not
	// sourced per account.
	DefaultLeverage = 100

	// priceHistoryCap bounds the per-position price ring buffer
	priceHistoryCap = 100
)

// SymbolInfo holds the per-symbol metadata the engine computes with
type SymbolInfo struct {
	Symbol         string  `json:"symbol"`
	Digits         int     `json:"digits"`
	TickSize       float64 `json:"tick_size"`
	TickValue      float64 `json:"tick_value"`
	ContractSize   float64 `json:"contract_size"`
	ProfitCurrency string  `json:"profit_currency"`
}

// Position is the snapshot the engine computes over
type Position struct {
	Ticket       int64     `json:"ticket"`
	Symbol       string    `json:"symbol"`
	Type         string    `json:"type"` // BUY or SELL
	Lots         float64   `json:"lots"`
	OpenPrice    float64   `json:"open_price"`
	CurrentPrice float64   `json:"current_price"`
	Commission   float64   `json:"commission"`
	Swap         float64   `json:"swap"`
	Profit       float64   `json:"profit"` // realized portion, if any
	OpenTime     time.Time `json:"open_time"`
}

// PositionPnL is the immutable per-position report row
type PositionPnL struct {
	Ticket          int64   `json:"ticket"`
	Symbol          string  `json:"symbol"`
	Type            string  `json:"type"`
	Lots            float64 `json:"lots"`
	OpenPrice       float64 `json:"open_price"`
	CurrentPrice    float64 `json:"current_price"`
	UnrealizedPnL   float64 `json:"unrealized_pnl"`
	RealizedPnL     float64 `json:"realized_pnl"`
	TotalPnL        float64 `json:"total_pnl"`
	Pips            float64 `json:"pips"`
	MarginUsed      float64 `json:"margin_used"`
	AccountCurrency string  `json:"account_currency"`
	AmountConverted bool    `json:"amount_converted"`
}

// PnLReport aggregates across a position set.
//
// DailyPnL/WeeklyPnL/MonthlyPnL are approximations: they filter the
// currently open positions by open-time cutoff and sum their current
// total PnL. True period-realized figures need a realized-PnL ledger
// keyed by close time (the trade repository exposes one).
type PnLReport struct {
	Positions       []PositionPnL `json:"positions"`
	TotalUnrealized float64       `json:"total_unrealized"`
	TotalRealized   float64       `json:"total_realized"`
	TotalPnL        float64       `json:"total_pnl"`
	TotalMarginUsed float64       `json:"total_margin_used"`
	DailyPnL        float64       `json:"daily_pnl"`
	WeeklyPnL       float64       `json:"weekly_pnl"`
	MonthlyPnL      float64       `json:"monthly_pnl"`
	GeneratedAt     time.Time     `json:"generated_at"`
}

// ThresholdResult carries the boolean triggers plus raw percentages
// used to drive external alerting.
type ThresholdResult struct {
	ProfitReached bool    `json:"profit_reached"`
	LossReached   bool    `json:"loss_reached"`
	PnLPercent    float64 `json:"pnl_percent"`
	MarginUsed    float64 `json:"margin_used"`
	TotalPnL      float64 `json:"total_pnl"`
}

// pricePoint is one entry of a position's price history ring
type pricePoint struct {
	Price float64   `json:"price"`
	At    time.Time `json:"at"`
}

// Engine computes P&L, margin and currency conversion for position
// snapshots. It mutates no trading state; it only caches symbol
// metadata, exchange rates and a bounded per-position price history.
type Engine struct {
	mu              sync.RWMutex
	symbols         map[string]SymbolInfo
	rates           map[string]float64 // "FROM/TO" -> rate
	history         map[int64][]pricePoint
	accountCurrency string
	leverage        float64
}

// NewEngine creates an Engine converting into accountCurrency. A
// leverage <= 0 falls back to DefaultLeverage.
func NewEngine(accountCurrency string, leverage float64) *Engine {
	if accountCurrency == "" {
		accountCurrency = "USD"
	}
	if leverage <= 0 {
		leverage = DefaultLeverage
	}
	return &Engine{
		symbols:         make(map[string]SymbolInfo),
		rates:           make(map[string]float64),
		history:         make(map[int64][]pricePoint),
		accountCurrency: accountCurrency,
		leverage:        leverage,
	}
}

// RegisterSymbol caches metadata for a symbol
func (e *Engine) RegisterSymbol(info SymbolInfo) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.symbols[info.Symbol] = info
}

// SetExchangeRate caches the conversion rate for an ordered pair
func (e *Engine) SetExchangeRate(from, to string, rate float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rates[from+"/"+to] = rate
}

// symbolInfo returns cached metadata, degrading to neutral defaults
// (contract size 1, account-currency profit) with a warning when the
// symbol is unknown rather than failing the computation.
func (e *Engine) symbolInfo(symbol string) SymbolInfo {
	e.mu.RLock()
	info, ok := e.symbols[symbol]
	e.mu.RUnlock()
	if ok {
		return info
	}

	log.Printf("[PnLEngine] No metadata for symbol %s, using neutral defaults", symbol)
	return SymbolInfo{
		Symbol:         symbol,
		Digits:         5,
		TickSize:       0.00001,
		TickValue:      1,
		ContractSize:   1,
		ProfitCurrency: e.accountCurrency,
	}
}

// PipSize returns the pip size for a symbol: ten points for 3- and
// 5-digit quotes, one point otherwise.
func (e *Engine) PipSize(symbol string) float64 {
	info := e.symbolInfo(symbol)
	point := math.Pow(10, -float64(info.Digits))
	if info.Digits == 3 || info.Digits == 5 {
		return point * 10
	}
	return point
}

// PipsMoved returns the signed pip movement for a position; positive
// means the price moved in the position's favor.
func (e *Engine) PipsMoved(symbol, direction string, openPrice, currentPrice float64) float64 {
	pipSize := e.PipSize(symbol)
	if pipSize == 0 {
		return 0
	}
	diff := currentPrice - openPrice
	if direction == "SELL" {
		diff = -diff
	}
	return diff / pipSize
}

// UnrealizedPnL computes the open profit of a position in the symbol's
// profit currency, sign-flipped for sells.
func (e *Engine) UnrealizedPnL(pos Position) float64 {
	info := e.symbolInfo(pos.Symbol)
	diff := pos.CurrentPrice - pos.OpenPrice
	if pos.Type == "SELL" {
		diff = -diff
	}
	return diff * pos.Lots * info.ContractSize
}

// ConvertToAccountCurrency converts an amount from the given currency
// into the engine's account currency. It tries the direct rate, then
// the inverse; when neither exists it logs a warning and returns the
// unconverted amount rather than failing the whole computation. The
// second return value reports whether a conversion was applied.
func (e *Engine) ConvertToAccountCurrency(amount float64, from string) (float64, bool) {
	if from == "" || from == e.accountCurrency {
		return amount, true
	}

	e.mu.RLock()
	direct, hasDirect := e.rates[from+"/"+e.accountCurrency]
	inverse, hasInverse := e.rates[e.accountCurrency+"/"+from]
	e.mu.RUnlock()

	if hasDirect {
		return amount * direct, true
	}
	if hasInverse && inverse != 0 {
		return amount / inverse, true
	}

	log.Printf("[PnLEngine] No exchange rate for %s/%s, returning unconverted amount", from, e.accountCurrency)
	return amount, false
}

// MarginUsed returns the capital reserved against the position's
// notional exposure at the engine's fixed leverage.
func (e *Engine) MarginUsed(pos Position) float64 {
	info := e.symbolInfo(pos.Symbol)
	return pos.Lots * info.ContractSize * pos.OpenPrice / e.leverage
}

// RecordPrice appends a tick to the position's price history ring,
// capped at the most recent entries.
func (e *Engine) RecordPrice(ticket int64, price float64, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	points := append(e.history[ticket], pricePoint{Price: price, At: at})
	if len(points) > priceHistoryCap {
		points = points[len(points)-priceHistoryCap:]
	}
	e.history[ticket] = points
}

// PriceHistory returns the recorded ticks for a position, oldest first
func (e *Engine) PriceHistory(ticket int64) []float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	points := e.history[ticket]
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Price
	}
	return out
}

// ForgetPosition drops the price history of a closed position
func (e *Engine) ForgetPosition(ticket int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.history, ticket)
}

// CalculatePositionPnL composes pip, PnL, margin and conversion into
// one immutable report row. It never mutates the input snapshot.
func (e *Engine) CalculatePositionPnL(pos Position) PositionPnL {
	info := e.symbolInfo(pos.Symbol)

	unrealized := e.UnrealizedPnL(pos)
	total := unrealized + pos.Commission + pos.Swap

	converted, ok := e.ConvertToAccountCurrency(total, info.ProfitCurrency)
	unrealizedConverted, _ := e.ConvertToAccountCurrency(unrealized, info.ProfitCurrency)

	return PositionPnL{
		Ticket:          pos.Ticket,
		Symbol:          pos.Symbol,
		Type:            pos.Type,
		Lots:            pos.Lots,
		OpenPrice:       pos.OpenPrice,
		CurrentPrice:    pos.CurrentPrice,
		UnrealizedPnL:   unrealizedConverted,
		RealizedPnL:     pos.Profit,
		TotalPnL:        converted,
		Pips:            e.PipsMoved(pos.Symbol, pos.Type, pos.OpenPrice, pos.CurrentPrice),
		MarginUsed:      e.MarginUsed(pos),
		AccountCurrency: e.accountCurrency,
		AmountConverted: ok,
	}
}

// CalculatePnLReport aggregates a position set. The period figures are
// the documented open-position approximation, not a realized ledger.
func (e *Engine) CalculatePnLReport(positions []Position) PnLReport {
	now := time.Now()
	report := PnLReport{
		Positions:   make([]PositionPnL, 0, len(positions)),
		GeneratedAt: now,
	}

	dayCutoff := now.AddDate(0, 0, -1)
	weekCutoff := now.AddDate(0, 0, -7)
	monthCutoff := now.AddDate(0, -1, 0)

	for _, pos := range positions {
		row := e.CalculatePositionPnL(pos)
		report.Positions = append(report.Positions, row)

		report.TotalUnrealized += row.UnrealizedPnL
		report.TotalRealized += row.RealizedPnL
		report.TotalPnL += row.TotalPnL
		report.TotalMarginUsed += row.MarginUsed

		if pos.OpenTime.After(dayCutoff) {
			report.DailyPnL += row.TotalPnL
		}
		if pos.OpenTime.After(weekCutoff) {
			report.WeeklyPnL += row.TotalPnL
		}
		if pos.OpenTime.After(monthCutoff) {
			report.MonthlyPnL += row.TotalPnL
		}
	}
	return report
}

// CheckPnLThresholds compares total PnL as a percentage of margin used
// against the supplied profit and loss thresholds (both expressed as
// positive percentages).
func (e *Engine) CheckPnLThresholds(totalPnL, marginUsed, profitThreshold, lossThreshold float64) ThresholdResult {
	result := ThresholdResult{
		MarginUsed: marginUsed,
		TotalPnL:   totalPnL,
	}
	if marginUsed == 0 {
		return result
	}

	result.PnLPercent = totalPnL / marginUsed * 100
	result.ProfitReached = profitThreshold > 0 && result.PnLPercent >= profitThreshold
	result.LossReached = lossThreshold > 0 && result.PnLPercent <= -lossThreshold
	return result
}

// String describes the engine configuration
func (e *Engine) String() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return fmt.Sprintf("PnLEngine(currency=%s leverage=%.0f symbols=%d)", e.accountCurrency, e.leverage, len(e.symbols))
}
