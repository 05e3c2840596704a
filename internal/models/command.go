package models

import (
	"time"
)

// CommandType represents the kind of instruction sent to an executor
type CommandType string

const (
	CommandStartStrategy CommandType = "START_STRATEGY"
	CommandStopStrategy  CommandType = "STOP_STRATEGY"
	CommandClosePosition CommandType = "CLOSE_POSITION"
	CommandPing          CommandType = "PING"
	// CommandEmergencyStop is reserved for the close-all safety path and
	// always travels at PriorityUrgent.
	CommandEmergencyStop CommandType = "EMERGENCY_STOP"
)

// Priority is the ordinal urgency tier of a command; higher is more urgent
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 5
	PriorityHigh   Priority = 8
	PriorityUrgent Priority = 10
)

// CommandStatus tracks a command through the delivery pipeline
type CommandStatus string

const (
	CommandStatusPending      CommandStatus = "PENDING"
	CommandStatusSent         CommandStatus = "SENT"
	CommandStatusAcknowledged CommandStatus = "ACKNOWLEDGED"
	CommandStatusExecuted     CommandStatus = "EXECUTED"
	CommandStatusFailed       CommandStatus = "FAILED"
)

// TradeCommand represents an instruction directed at one executor.
// Commands are immutable once created; only delivery timestamps and
// status move as the pipeline progresses.
type TradeCommand struct {
	ID             string        `gorm:"primaryKey;size:36" json:"id"`
	ExecutorID     string        `gorm:"index;size:36;not null" json:"executor_id"`
	StrategyID     string        `gorm:"index;size:36" json:"strategy_id,omitempty"`
	Type           CommandType   `gorm:"size:30;not null" json:"type"`
	Priority       Priority      `gorm:"not null;default:5" json:"priority"`
	Payload        string        `gorm:"type:jsonb" json:"payload,omitempty"`
	Status         CommandStatus `gorm:"size:20;not null;default:'PENDING'" json:"status"`
	ExpiresAt      *time.Time    `json:"expires_at,omitempty"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty"`
	ExecutedAt     *time.Time    `json:"executed_at,omitempty"`
	CreatedAt      time.Time     `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`

	// Relations
	Executor Executor `gorm:"foreignKey:ExecutorID" json:"-"`
}

// TableName specifies the table name for TradeCommand model
func (TradeCommand) TableName() string {
	return "trade_commands"
}

// IsTerminal returns true once the command can no longer progress
func (c *TradeCommand) IsTerminal() bool {
	return c.Status == CommandStatusExecuted || c.Status == CommandStatusFailed
}

// IsExpired reports whether the command's delivery window has closed.
// Commands without an expiry (emergency stops in particular) never
// expire.
func (c *TradeCommand) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}
