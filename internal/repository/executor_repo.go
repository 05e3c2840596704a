package repository

import (
	"errors"
	"time"

	"github.com/fleet-bridge/internal/models"
	"gorm.io/gorm"
)

var (
	ErrExecutorNotFound = errors.New("executor not found")
)

// ExecutorRepository handles executor data access
type ExecutorRepository struct {
	db *gorm.DB
}

// NewExecutorRepository creates a new ExecutorRepository
func NewExecutorRepository(db *gorm.DB) *ExecutorRepository {
	return &ExecutorRepository{db: db}
}

// Create creates a new executor record
func (r *ExecutorRepository) Create(executor *models.Executor) error {
	return r.db.Create(executor).Error
}

// GetByID retrieves an executor by ID
func (r *ExecutorRepository) GetByID(id string) (*models.Executor, error) {
	var executor models.Executor
	result := r.db.First(&executor, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrExecutorNotFound
		}
		return nil, result.Error
	}
	return &executor, nil
}

// GetByAPIKey retrieves an executor by API key
func (r *ExecutorRepository) GetByAPIKey(apiKey string) (*models.Executor, error) {
	var executor models.Executor
	result := r.db.Where("api_key = ?", apiKey).First(&executor)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrExecutorNotFound
		}
		return nil, result.Error
	}
	return &executor, nil
}

// GetAll retrieves every active (not soft-deleted) executor
func (r *ExecutorRepository) GetAll() ([]models.Executor, error) {
	var executors []models.Executor
	result := r.db.Order("created_at ASC").Find(&executors)
	return executors, result.Error
}

// GetByUserID retrieves all executors owned by a user
func (r *ExecutorRepository) GetByUserID(userID uint) ([]models.Executor, error) {
	var executors []models.Executor
	result := r.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&executors)
	return executors, result.Error
}

// GetByStatus retrieves active executors in the given cached state
func (r *ExecutorRepository) GetByStatus(status models.ExecutorState) ([]models.Executor, error) {
	var executors []models.Executor
	result := r.db.Where("status = ?", status).Find(&executors)
	return executors, result.Error
}

// Update updates an executor record
func (r *ExecutorRepository) Update(executor *models.Executor) error {
	return r.db.Save(executor).Error
}

// UpdateStatus updates the cached connection state
func (r *ExecutorRepository) UpdateStatus(id string, status models.ExecutorState) error {
	return r.db.Model(&models.Executor{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}).Error
}

// UpdateHeartbeat stamps the last heartbeat time
func (r *ExecutorRepository) UpdateHeartbeat(id string, at time.Time) error {
	return r.db.Model(&models.Executor{}).Where("id = ?", id).Update("last_heartbeat", at).Error
}

// SoftDelete soft-deletes an executor and marks it offline
func (r *ExecutorRepository) SoftDelete(id string) error {
	if err := r.db.Model(&models.Executor{}).Where("id = ?", id).Update("status", models.ExecutorOffline).Error; err != nil {
		return err
	}
	return r.db.Delete(&models.Executor{}, "id = ?", id).Error
}
