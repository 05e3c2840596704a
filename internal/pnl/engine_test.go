package pnl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnrealizedPnLBuy(t *testing.T) {
	e := NewEngine("USD", 0)

	pos := Position{
		Ticket:       1,
		Symbol:       "EURUSD",
		Type:         "BUY",
		Lots:         1.0,
		OpenPrice:    1.1000,
		CurrentPrice: 1.1050,
	}

	// No registered metadata: contract size degrades to 1
	assert.InDelta(t, 0.0050, e.UnrealizedPnL(pos), 1e-9)
}

func TestUnrealizedPnLSellProfitsOnDrop(t *testing.T) {
	e := NewEngine("USD", 0)
	e.RegisterSymbol(SymbolInfo{
		Symbol:         "GBPUSD",
		Digits:         5,
		ContractSize:   100000,
		ProfitCurrency: "USD",
	})

	pos := Position{
		Symbol:       "GBPUSD",
		Type:         "SELL",
		Lots:         0.5,
		OpenPrice:    1.2000,
		CurrentPrice: 1.1950,
	}

	assert.InDelta(t, 250.0, e.UnrealizedPnL(pos), 1e-9)
}

func TestTotalPnLIncludesCommissionAndSwap(t *testing.T) {
	e := NewEngine("USD", 0)
	e.RegisterSymbol(SymbolInfo{
		Symbol:         "EURUSD",
		Digits:         5,
		ContractSize:   100000,
		ProfitCurrency: "USD",
	})

	row := e.CalculatePositionPnL(Position{
		Symbol:       "EURUSD",
		Type:         "BUY",
		Lots:         1.0,
		OpenPrice:    1.1000,
		CurrentPrice: 1.1050,
		Commission:   -2,
		Swap:         -1,
	})

	assert.InDelta(t, 500.0, row.UnrealizedPnL, 1e-9)
	assert.InDelta(t, 497.0, row.TotalPnL, 1e-9)
	assert.True(t, row.AmountConverted)
}

func TestPipSizeByDigits(t *testing.T) {
	e := NewEngine("USD", 0)
	e.RegisterSymbol(SymbolInfo{Symbol: "EURUSD", Digits: 5, ContractSize: 100000})
	e.RegisterSymbol(SymbolInfo{Symbol: "USDJPY", Digits: 3, ContractSize: 100000})
	e.RegisterSymbol(SymbolInfo{Symbol: "XAUUSD", Digits: 2, ContractSize: 100})

	assert.InDelta(t, 0.0001, e.PipSize("EURUSD"), 1e-12)
	assert.InDelta(t, 0.01, e.PipSize("USDJPY"), 1e-12)
	assert.InDelta(t, 0.01, e.PipSize("XAUUSD"), 1e-12)
}

func TestPipsMovedSignedByDirection(t *testing.T) {
	e := NewEngine("USD", 0)
	e.RegisterSymbol(SymbolInfo{Symbol: "EURUSD", Digits: 5, ContractSize: 100000})

	assert.InDelta(t, 50.0, e.PipsMoved("EURUSD", "BUY", 1.1000, 1.1050), 1e-6)
	assert.InDelta(t, -50.0, e.PipsMoved("EURUSD", "SELL", 1.1000, 1.1050), 1e-6)
}

func TestMarginUsed(t *testing.T) {
	e := NewEngine("USD", 100)
	e.RegisterSymbol(SymbolInfo{Symbol: "EURUSD", Digits: 5, ContractSize: 100000})

	pos := Position{Symbol: "EURUSD", Type: "BUY", Lots: 1.0, OpenPrice: 1.1000}
	assert.InDelta(t, 1100.0, e.MarginUsed(pos), 1e-9)
}

func TestConvertToAccountCurrency(t *testing.T) {
	e := NewEngine("USD", 0)

	// Same currency is a no-op
	got, ok := e.ConvertToAccountCurrency(100, "USD")
	assert.True(t, ok)
	assert.InDelta(t, 100.0, got, 1e-9)

	// Direct rate
	e.SetExchangeRate("EUR", "USD", 1.10)
	got, ok = e.ConvertToAccountCurrency(100, "EUR")
	assert.True(t, ok)
	assert.InDelta(t, 110.0, got, 1e-9)

	// Inverse fallback
	e.SetExchangeRate("USD", "JPY", 150)
	got, ok = e.ConvertToAccountCurrency(1500, "JPY")
	assert.True(t, ok)
	assert.InDelta(t, 10.0, got, 1e-9)

	// Missing rate returns the unconverted amount, flagged
	got, ok = e.ConvertToAccountCurrency(42, "CHF")
	assert.False(t, ok)
	assert.InDelta(t, 42.0, got, 1e-9)
}

func TestCheckPnLThresholds(t *testing.T) {
	e := NewEngine("USD", 0)

	result := e.CheckPnLThresholds(250, 1000, 20, 10)
	assert.True(t, result.ProfitReached)
	assert.False(t, result.LossReached)
	assert.InDelta(t, 25.0, result.PnLPercent, 1e-9)

	result = e.CheckPnLThresholds(-150, 1000, 20, 10)
	assert.False(t, result.ProfitReached)
	assert.True(t, result.LossReached)
	assert.InDelta(t, -15.0, result.PnLPercent, 1e-9)

	// Zero margin never triggers
	result = e.CheckPnLThresholds(500, 0, 20, 10)
	assert.False(t, result.ProfitReached)
	assert.False(t, result.LossReached)
	assert.Zero(t, result.PnLPercent)
}

func TestPriceHistoryRingCap(t *testing.T) {
	e := NewEngine("USD", 0)
	at := time.Now()

	for i := 0; i < 150; i++ {
		e.RecordPrice(7, float64(i), at)
	}

	history := e.PriceHistory(7)
	require.Len(t, history, 100)
	assert.InDelta(t, 50.0, history[0], 1e-9)
	assert.InDelta(t, 149.0, history[99], 1e-9)

	e.ForgetPosition(7)
	assert.Empty(t, e.PriceHistory(7))
}

func TestCalculatePnLReportAggregates(t *testing.T) {
	e := NewEngine("USD", 100)
	e.RegisterSymbol(SymbolInfo{
		Symbol:         "EURUSD",
		Digits:         5,
		ContractSize:   100000,
		ProfitCurrency: "USD",
	})

	now := time.Now()
	positions := []Position{
		{
			Ticket: 1, Symbol: "EURUSD", Type: "BUY", Lots: 1.0,
			OpenPrice: 1.1000, CurrentPrice: 1.1050,
			OpenTime: now.Add(-2 * time.Hour),
		},
		{
			Ticket: 2, Symbol: "EURUSD", Type: "SELL", Lots: 1.0,
			OpenPrice: 1.1000, CurrentPrice: 1.1050,
			OpenTime: now.AddDate(0, 0, -3),
		},
	}

	report := e.CalculatePnLReport(positions)
	require.Len(t, report.Positions, 2)

	assert.InDelta(t, 0.0, report.TotalPnL, 1e-9)
	assert.InDelta(t, 0.0, report.TotalUnrealized, 1e-9)
	assert.InDelta(t, 2200.0, report.TotalMarginUsed, 1e-9)

	// Only the two-hour-old position counts toward the daily figure;
	// both fall inside the week and month windows.
	assert.InDelta(t, 500.0, report.DailyPnL, 1e-9)
	assert.InDelta(t, 0.0, report.WeeklyPnL, 1e-9)
	assert.InDelta(t, 0.0, report.MonthlyPnL, 1e-9)
}
