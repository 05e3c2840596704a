package repository

import (
	"github.com/fleet-bridge/internal/models"
	"gorm.io/gorm"
)

// AuditRepository handles audit log data access
type AuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository creates a new AuditRepository
func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create writes an audit entry
func (r *AuditRepository) Create(entry *models.AuditLog) error {
	return r.db.Create(entry).Error
}

// GetByExecutor retrieves audit entries for one executor, newest first
func (r *AuditRepository) GetByExecutor(executorID string, limit int) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	result := r.db.Where("executor_id = ?", executorID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries)
	return entries, result.Error
}

// ListByExecutor retrieves one page of an executor's audit entries,
// newest first, plus the total count
func (r *AuditRepository) ListByExecutor(executorID string, page, pageSize int) ([]models.AuditLog, int64, error) {
	var entries []models.AuditLog
	var total int64

	query := r.db.Model(&models.AuditLog{}).Where("executor_id = ?", executorID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	result := query.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries)
	return entries, total, result.Error
}

// GetBySeverity retrieves recent entries at a given severity
func (r *AuditRepository) GetBySeverity(severity models.AuditSeverity, limit int) ([]models.AuditLog, error) {
	var entries []models.AuditLog
	result := r.db.Where("severity = ?", severity).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries)
	return entries, result.Error
}
