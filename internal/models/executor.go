package models

import (
	"time"

	"gorm.io/gorm"
)

// Platform represents the trading terminal platform an executor runs
type Platform string

const (
	PlatformMT4 Platform = "MT4"
	PlatformMT5 Platform = "MT5"
)

// ExecutorState represents the cached connection state of an executor.
// It is advisory only; the ConnectionGateway's live set is ground truth
// and the monitor worker reconciles this cache against it.
type ExecutorState string

const (
	ExecutorOnline  ExecutorState = "online"
	ExecutorOffline ExecutorState = "offline"
	ExecutorError   ExecutorState = "error"
)

// Executor represents a registered remote trading terminal
type Executor struct {
	ID            string         `gorm:"primaryKey;size:36" json:"id"`
	UserID        uint           `gorm:"index;not null" json:"user_id"`
	Name          string         `gorm:"size:100;not null" json:"name"`
	Platform      Platform       `gorm:"size:10;not null" json:"platform"`
	APIKey        string         `gorm:"uniqueIndex;size:100;not null" json:"api_key"`
	APISecretHash string         `gorm:"size:255;not null" json:"-"`
	Status        ExecutorState  `gorm:"size:20;default:'offline'" json:"status"`
	LastHeartbeat *time.Time     `json:"last_heartbeat,omitempty"`
	Broker        string         `gorm:"size:100" json:"broker,omitempty"`
	AccountNumber string         `gorm:"size:50" json:"account_number,omitempty"`
	Capabilities  string         `gorm:"type:jsonb" json:"capabilities,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	User     User           `gorm:"foreignKey:UserID" json:"-"`
	Trades   []Trade        `gorm:"foreignKey:ExecutorID" json:"trades,omitempty"`
	Commands []TradeCommand `gorm:"foreignKey:ExecutorID" json:"commands,omitempty"`
}

// TableName specifies the table name for Executor model
func (Executor) TableName() string {
	return "executors"
}

// IsOnline returns true if the cached state is online
func (e *Executor) IsOnline() bool {
	return e.Status == ExecutorOnline
}

// ExecutorStatus is the derived status view returned by GetStatus.
// It is recomputed on every query and never persisted: IsOnline comes
// from the gateway's live-connection set, the metrics from full history.
type ExecutorStatus struct {
	ExecutorID      string     `json:"executor_id"`
	Name            string     `json:"name"`
	Platform        Platform   `json:"platform"`
	IsOnline        bool       `json:"is_online"`
	LastHeartbeat   *time.Time `json:"last_heartbeat,omitempty"`
	OpenPositions   int64      `json:"open_positions"`
	PendingCommands int64      `json:"pending_commands"`
	TotalTrades     int64      `json:"total_trades"`
	SuccessRate     float64    `json:"success_rate"`
	AverageLatency  float64    `json:"average_latency_ms"`
}

// RegisterResponse is returned once on registration. SecretKey carries the
// plaintext secret exactly once; only its hash is ever persisted.
type RegisterResponse struct {
	Executor  *Executor   `json:"executor"`
	APIKey    string      `json:"api_key"`
	SecretKey PlainSecret `json:"secret_key"`
}
