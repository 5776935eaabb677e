package models

import (
	"time"
)

// BonusBalance is the per-user bonus account. One row per user, created on
// the first ledger mutation. Balance == TotalEarned - TotalSpent, never negative.
type BonusBalance struct {
	UserID      uint      `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Balance     int64     `gorm:"not null;default:0" json:"balance"`
	TotalEarned int64     `gorm:"not null;default:0" json:"total_earned"`
	TotalSpent  int64     `gorm:"not null;default:0" json:"total_spent"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (BonusBalance) TableName() string {
	return "bonus_balances"
}
