package models

import (
	"time"
)

// BonusTransaction is an immutable ledger row. Amount is signed: earned and
// refund rows are positive, spend rows negative, so a user's rows always sum
// to their balance.
type BonusTransaction struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	Amount      int64     `gorm:"not null" json:"amount"`
	Type        string    `gorm:"size:20;not null;index" json:"type"` // earned, spend, refund
	Source      string    `gorm:"size:50;not null" json:"source"`
	PaymentID   *uint     `gorm:"index" json:"payment_id,omitempty"`
	Description string    `gorm:"size:255" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func (BonusTransaction) TableName() string {
	return "bonus_transactions"
}
