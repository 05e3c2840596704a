package models

import (
	"time"
)

// TradeType represents the direction of a trade
type TradeType string

const (
	TradeTypeBuy  TradeType = "BUY"
	TradeTypeSell TradeType = "SELL"
)

// Trade represents a trade reported by a remote executor.
// A trade with no CloseTime is an open position; executors holding
// such trades are safety-monitored and cannot be removed.
type Trade struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	ExecutorID string     `gorm:"index;size:36;not null" json:"executor_id"`
	StrategyID string     `gorm:"index;size:36" json:"strategy_id,omitempty"`
	Ticket     int64      `gorm:"index;not null" json:"ticket"`
	Symbol     string     `gorm:"size:20;not null;index" json:"symbol"`
	Type       TradeType  `gorm:"size:10;not null" json:"type"`
	Lots       float64    `gorm:"type:decimal(10,2);not null" json:"lots"`
	OpenPrice  float64    `gorm:"type:decimal(20,8);not null" json:"open_price"`
	ClosePrice *float64   `gorm:"type:decimal(20,8)" json:"close_price,omitempty"`
	StopLoss   *float64   `gorm:"type:decimal(20,8)" json:"stop_loss,omitempty"`
	TakeProfit *float64   `gorm:"type:decimal(20,8)" json:"take_profit,omitempty"`
	Profit     float64    `gorm:"type:decimal(20,8);default:0" json:"profit"`
	Commission float64    `gorm:"type:decimal(20,8);default:0" json:"commission"`
	Swap       float64    `gorm:"type:decimal(20,8);default:0" json:"swap"`
	OpenTime   time.Time  `gorm:"index;not null" json:"open_time"`
	CloseTime  *time.Time `gorm:"index" json:"close_time,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// Relations
	Executor Executor `gorm:"foreignKey:ExecutorID" json:"-"`
}

// TableName specifies the table name for Trade model
func (Trade) TableName() string {
	return "trades"
}

// IsOpen returns true if the trade is an open position
func (t *Trade) IsOpen() bool {
	return t.CloseTime == nil
}

// IsProfitable returns true if the trade closed in profit
func (t *Trade) IsProfitable() bool {
	return t.Profit > 0
}
