package models

import (
	"time"

	"gorm.io/datatypes"
)

// Payment is one scenario purchase. Amount is the full price after the
// referral discount and before the bonus offset; the gateway is charged
// Amount - BonusUsed.
type Payment struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	UserID             uint           `gorm:"not null;index" json:"user_id"`
	ScenarioID         uint           `gorm:"not null;index" json:"scenario_id"`
	Amount             int64          `gorm:"not null" json:"amount"`
	BonusUsed          int64          `gorm:"not null;default:0" json:"bonus_used"`
	DiscountApplied    bool           `gorm:"not null;default:false" json:"discount_applied"`
	Currency           string         `gorm:"size:3;default:'RUB'" json:"currency"`
	Provider           string         `gorm:"size:20;not null" json:"provider"`
	Status             string         `gorm:"size:20;not null;index" json:"status"` // pending, succeeded, canceled
	GatewayPaymentID   *string        `gorm:"size:64;uniqueIndex" json:"gateway_payment_id,omitempty"`
	PaymentURL         string         `gorm:"size:512" json:"payment_url,omitempty"`
	IdempotenceKey     string         `gorm:"size:64;uniqueIndex" json:"-"`
	Description        string         `gorm:"size:255" json:"description"`
	Metadata           datatypes.JSON `json:"metadata,omitempty"`
	CustomerEmail      string         `gorm:"size:255" json:"-"`    // replayed when a charge is re-issued
	OpenScenarioID     *uint          `gorm:"uniqueIndex" json:"-"` // set while pending: one open charge per scenario
	OpenDiscountUserID *uint          `gorm:"uniqueIndex" json:"-"` // set while pending and discounted: one per user
	PaidAt             *time.Time     `json:"paid_at,omitempty"`
	CanceledAt         *time.Time     `json:"canceled_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

// MarkOpen fills the pending-only guard columns.
func (p *Payment) MarkOpen() {
	scenarioID := p.ScenarioID
	p.OpenScenarioID = &scenarioID
	if p.DiscountApplied {
		userID := p.UserID
		p.OpenDiscountUserID = &userID
	}
}

// CashAmount is what the gateway charges.
func (p *Payment) CashAmount() int64 {
	return p.Amount - p.BonusUsed
}
