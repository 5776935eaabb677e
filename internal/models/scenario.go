package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Scenario is a generated script. OwnerID stays nil for anonymous previews
// until a payment settles. IsPaid only ever goes false → true.
type Scenario struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	OwnerID    *uint          `gorm:"index" json:"owner_id"`
	IsPaid     bool           `gorm:"not null;default:false" json:"is_paid"`
	IsFree     bool           `gorm:"not null;default:false" json:"is_free"`
	ListPrice  int64          `gorm:"not null;default:0" json:"list_price"` // 0: price supplied at checkout
	Parameters datatypes.JSON `json:"parameters"`
	PaymentID  *string        `gorm:"size:64" json:"payment_id,omitempty"` // gateway id of the settling payment
	PaidAt     *time.Time     `json:"paid_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Scenario) TableName() string { return "scenarios" }
