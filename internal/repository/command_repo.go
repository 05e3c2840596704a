package repository

import (
	"errors"
	"time"

	"github.com/fleet-bridge/internal/models"
	"gorm.io/gorm"
)

var (
	ErrCommandNotFound = errors.New("command not found")
)

// CommandRepository handles trade command data access
type CommandRepository struct {
	db *gorm.DB
}

// NewCommandRepository creates a new CommandRepository
func NewCommandRepository(db *gorm.DB) *CommandRepository {
	return &CommandRepository{db: db}
}

// Create persists a new command
func (r *CommandRepository) Create(cmd *models.TradeCommand) error {
	return r.db.Create(cmd).Error
}

// GetByID retrieves a command by ID
func (r *CommandRepository) GetByID(id string) (*models.TradeCommand, error) {
	var cmd models.TradeCommand
	result := r.db.First(&cmd, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrCommandNotFound
		}
		return nil, result.Error
	}
	return &cmd, nil
}

// GetByExecutor retrieves all commands for an executor, newest first
func (r *CommandRepository) GetByExecutor(executorID string) ([]models.TradeCommand, error) {
	var cmds []models.TradeCommand
	result := r.db.Where("executor_id = ?", executorID).Order("created_at DESC").Find(&cmds)
	return cmds, result.Error
}

// GetExecuted retrieves commands that completed execution with both
// delivery timestamps set, for latency aggregation.
func (r *CommandRepository) GetExecuted(executorID string) ([]models.TradeCommand, error) {
	var cmds []models.TradeCommand
	result := r.db.
		Where("executor_id = ? AND acknowledged_at IS NOT NULL AND executed_at IS NOT NULL", executorID).
		Find(&cmds)
	return cmds, result.Error
}

// CountPendingByExecutor counts commands not yet in a terminal state
func (r *CommandRepository) CountPendingByExecutor(executorID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.TradeCommand{}).
		Where("executor_id = ? AND status IN ?", executorID, []models.CommandStatus{
			models.CommandStatusPending,
			models.CommandStatusSent,
			models.CommandStatusAcknowledged,
		}).
		Count(&count).Error
	return count, err
}

// UpdateStatus updates a command's pipeline status
func (r *CommandRepository) UpdateStatus(id string, status models.CommandStatus) error {
	return r.db.Model(&models.TradeCommand{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}).Error
}

// MarkAcknowledged stamps the acknowledgment time
func (r *CommandRepository) MarkAcknowledged(id string, at time.Time) error {
	return r.db.Model(&models.TradeCommand{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":          models.CommandStatusAcknowledged,
		"acknowledged_at": at,
	}).Error
}

// MarkExecuted stamps the execution time
func (r *CommandRepository) MarkExecuted(id string, at time.Time) error {
	return r.db.Model(&models.TradeCommand{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      models.CommandStatusExecuted,
		"executed_at": at,
	}).Error
}
