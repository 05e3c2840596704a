package service

import (
	"time"

	"github.com/fleet-bridge/internal/models"
	"github.com/fleet-bridge/internal/pnl"
)

// PnLLedger is the realized-PnL query behind true period figures
type PnLLedger interface {
	GetOpenByExecutor(executorID string) ([]models.Trade, error)
	RealizedPnLSince(executorID string, since time.Time) (float64, error)
}

// RealizedPnL carries ledger-backed period figures, computed from
// trades keyed by close time. Unlike the report's open-position
// approximation these are exact.
type RealizedPnL struct {
	Daily   float64 `json:"daily"`
	Weekly  float64 `json:"weekly"`
	Monthly float64 `json:"monthly"`
}

// ReportService bridges the persisted trade store and the pure P&L
// engine: it snapshots an executor's open positions, applies supplied
// price ticks, and produces the engine's reports.
type ReportService struct {
	trades PnLLedger
	engine *pnl.Engine
}

// NewReportService creates a ReportService over the given engine
func NewReportService(trades PnLLedger, engine *pnl.Engine) *ReportService {
	return &ReportService{
		trades: trades,
		engine: engine,
	}
}

// Engine exposes the underlying engine for symbol/rate registration
func (s *ReportService) Engine() *pnl.Engine {
	return s.engine
}

// BuildReport computes the P&L report for an executor's open
// positions. prices maps symbol to current price; a position whose
// symbol has no tick yet falls back to its open price (flat PnL)
// rather than failing the report.
func (s *ReportService) BuildReport(executorID string, prices map[string]float64) (*pnl.PnLReport, error) {
	trades, err := s.trades.GetOpenByExecutor(executorID)
	if err != nil {
		return nil, err
	}

	positions := make([]pnl.Position, 0, len(trades))
	for _, t := range trades {
		current, ok := prices[t.Symbol]
		if !ok || current <= 0 {
			current = t.OpenPrice
		}

		positions = append(positions, pnl.Position{
			Ticket:       t.Ticket,
			Symbol:       t.Symbol,
			Type:         string(t.Type),
			Lots:         t.Lots,
			OpenPrice:    t.OpenPrice,
			CurrentPrice: current,
			Commission:   t.Commission,
			Swap:         t.Swap,
			Profit:       t.Profit,
			OpenTime:     t.OpenTime,
		})

		s.engine.RecordPrice(t.Ticket, current, time.Now())
	}

	report := s.engine.CalculatePnLReport(positions)
	return &report, nil
}

// RealizedFigures computes the exact period P&L from the closed-trade
// ledger.
func (s *ReportService) RealizedFigures(executorID string) (*RealizedPnL, error) {
	now := time.Now()
	out := &RealizedPnL{}

	var err error
	if out.Daily, err = s.trades.RealizedPnLSince(executorID, now.AddDate(0, 0, -1)); err != nil {
		return nil, err
	}
	if out.Weekly, err = s.trades.RealizedPnLSince(executorID, now.AddDate(0, 0, -7)); err != nil {
		return nil, err
	}
	if out.Monthly, err = s.trades.RealizedPnLSince(executorID, now.AddDate(0, -1, 0)); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckThresholds runs the engine's threshold comparison over a fresh
// report for the executor.
func (s *ReportService) CheckThresholds(executorID string, prices map[string]float64, profitThreshold, lossThreshold float64) (*pnl.ThresholdResult, error) {
	report, err := s.BuildReport(executorID, prices)
	if err != nil {
		return nil, err
	}

	result := s.engine.CheckPnLThresholds(report.TotalPnL, report.TotalMarginUsed, profitThreshold, lossThreshold)
	return &result, nil
}
