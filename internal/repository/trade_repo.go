package repository

import (
	"errors"
	"time"

	"github.com/fleet-bridge/internal/models"
	"gorm.io/gorm"
)

var (
	ErrTradeNotFound = errors.New("trade not found")
)

// TradeRepository handles trade data access
type TradeRepository struct {
	db *gorm.DB
}

// NewTradeRepository creates a new TradeRepository
func NewTradeRepository(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Create creates a new trade record
func (r *TradeRepository) Create(trade *models.Trade) error {
	return r.db.Create(trade).Error
}

// GetByTicket retrieves a trade by executor and terminal ticket
func (r *TradeRepository) GetByTicket(executorID string, ticket int64) (*models.Trade, error) {
	var trade models.Trade
	result := r.db.Where("executor_id = ? AND ticket = ?", executorID, ticket).First(&trade)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrTradeNotFound
		}
		return nil, result.Error
	}
	return &trade, nil
}

// GetByExecutor retrieves the full trade history for an executor
func (r *TradeRepository) GetByExecutor(executorID string) ([]models.Trade, error) {
	var trades []models.Trade
	result := r.db.Where("executor_id = ?", executorID).Order("open_time DESC").Find(&trades)
	return trades, result.Error
}

// GetOpenByExecutor retrieves the open positions (no close time) for
// an executor.
func (r *TradeRepository) GetOpenByExecutor(executorID string) ([]models.Trade, error) {
	var trades []models.Trade
	result := r.db.Where("executor_id = ? AND close_time IS NULL", executorID).Find(&trades)
	return trades, result.Error
}

// CountOpenByExecutor counts open positions directly from the store
func (r *TradeRepository) CountOpenByExecutor(executorID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Trade{}).
		Where("executor_id = ? AND close_time IS NULL", executorID).
		Count(&count).Error
	return count, err
}

// CountByExecutor counts all trades for an executor
func (r *TradeRepository) CountByExecutor(executorID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Trade{}).Where("executor_id = ?", executorID).Count(&count).Error
	return count, err
}

// CountProfitableByExecutor counts trades that closed in profit
func (r *TradeRepository) CountProfitableByExecutor(executorID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Trade{}).
		Where("executor_id = ? AND profit > 0", executorID).
		Count(&count).Error
	return count, err
}

// Close records a trade closure reported by the executor
func (r *TradeRepository) Close(executorID string, ticket int64, closePrice, profit float64, closeTime time.Time) error {
	return r.db.Model(&models.Trade{}).
		Where("executor_id = ? AND ticket = ? AND close_time IS NULL", executorID, ticket).
		Updates(map[string]interface{}{
			"close_price": closePrice,
			"profit":      profit,
			"close_time":  closeTime,
		}).Error
}

// RealizedPnLSince sums the realized result (profit + commission +
// swap) of trades closed at or after the cutoff. This is the ledger
// behind true period P&L figures, as opposed to the open-position
// approximation the report produces.
func (r *TradeRepository) RealizedPnLSince(executorID string, since time.Time) (float64, error) {
	var total float64
	err := r.db.Model(&models.Trade{}).
		Select("COALESCE(SUM(profit + commission + swap), 0)").
		Where("executor_id = ? AND close_time >= ?", executorID, since).
		Scan(&total).Error
	return total, err
}
