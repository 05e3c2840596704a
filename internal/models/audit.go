package models

import (
	"time"
)

// AuditSeverity classifies audit log entries
type AuditSeverity string

const (
	AuditInfo     AuditSeverity = "INFO"
	AuditWarning  AuditSeverity = "WARNING"
	AuditCritical AuditSeverity = "CRITICAL"
)

// Audit actions recorded by the fleet core
const (
	AuditActionRegister       = "executor.register"
	AuditActionRemove         = "executor.remove"
	AuditActionStatusChange   = "executor.status_change"
	AuditActionDisconnect     = "executor.disconnected"
	AuditActionCommandSent    = "command.sent"
	AuditActionCommandDead    = "command.dead_letter"
	AuditActionCommandExpired = "command.expired"
	AuditActionEmergencyStop  = "emergency.stop"
	AuditActionEmergencyAll   = "emergency.stop_all"
	AuditActionQueueEvicted   = "queue.evicted"
)

// AuditLog records every state-changing operation of the fleet core.
// Disconnections discovered with open positions always write exactly
// one CRITICAL entry referencing the open-position count.
type AuditLog struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	ExecutorID string        `gorm:"index;size:36" json:"executor_id,omitempty"`
	Action     string        `gorm:"size:50;not null;index" json:"action"`
	Severity   AuditSeverity `gorm:"size:10;not null;default:'INFO';index" json:"severity"`
	Detail     string        `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt  time.Time     `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}
