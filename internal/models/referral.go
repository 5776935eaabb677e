package models

import (
	"time"

	"gorm.io/gorm"
)

// ReferralCode is a unique invite code belonging to a user.
// Each user has at most one referral code.
type ReferralCode struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"uniqueIndex;not null" json:"user_id"`
	Code      string         `gorm:"uniqueIndex;size:20;not null" json:"code"`
	Clicks    int64          `gorm:"not null;default:0" json:"clicks"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (ReferralCode) TableName() string { return "referral_codes" }

// Referral ties a referred user to the user whose code they arrived with.
// A user can only be referred once; FirstPaymentAt is set on their first
// settled purchase and never cleared.
type Referral struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	ReferrerID     uint       `gorm:"not null;index" json:"referrer_id"`
	ReferredID     uint       `gorm:"uniqueIndex;not null" json:"referred_id"`
	Status         string     `gorm:"size:20;not null;default:'registered'" json:"status"` // registered, paid
	FirstPaymentAt *time.Time `json:"first_payment_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Referral) TableName() string { return "referrals" }
