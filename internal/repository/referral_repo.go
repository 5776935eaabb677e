package repository

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"talkinghead/internal/domain"
	"talkinghead/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReferralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *ReferralRepository) WithTx(tx *gorm.DB) *ReferralRepository {
	return &ReferralRepository{db: tx}
}

// generateReferralCode returns an 8-character hex referral code.
func generateReferralCode() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GetOrCreateCode returns the existing referral code for a user, or creates a new unique one.
func (r *ReferralRepository) GetOrCreateCode(userID uint) (*models.ReferralCode, error) {
	var rc models.ReferralCode
	if err := r.db.Where("user_id = ?", userID).First(&rc).Error; err == nil {
		return &rc, nil
	}
	for i := 0; i < 10; i++ {
		code, err := generateReferralCode()
		if err != nil {
			return nil, err
		}
		rc = models.ReferralCode{UserID: userID, Code: code}
		if err := r.db.Create(&rc).Error; err == nil {
			return &rc, nil
		}
		// Either the code collided or a concurrent call created the user's row.
		var existing models.ReferralCode
		if err := r.db.Where("user_id = ?", userID).First(&existing).Error; err == nil {
			return &existing, nil
		}
	}
	return nil, fmt.Errorf("failed to generate a unique referral code after retries")
}

func (r *ReferralRepository) GetByCode(code string) (*models.ReferralCode, error) {
	var rc models.ReferralCode
	if err := r.db.Where("code = ?", code).First(&rc).Error; err != nil {
		return nil, err
	}
	return &rc, nil
}

// IncrementClicks bumps the click counter; it reports whether the code exists.
func (r *ReferralRepository) IncrementClicks(code string) (bool, error) {
	res := r.db.Model(&models.ReferralCode{}).
		Where("code = ?", code).
		UpdateColumn("clicks", gorm.Expr("clicks + 1"))
	return res.RowsAffected > 0, res.Error
}

// CreateReferral inserts the relationship unless the referred user already
// has one. It reports whether a row was inserted.
func (r *ReferralRepository) CreateReferral(referral *models.Referral) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "referred_id"}},
		DoNothing: true,
	}).Create(referral)
	return res.RowsAffected > 0, res.Error
}

// GetByReferredID returns the Referral for a referred user, or nil when the user was not referred.
func (r *ReferralRepository) GetByReferredID(userID uint) (*models.Referral, error) {
	var ref models.Referral
	err := r.db.Where("referred_id = ?", userID).First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// MarkFirstPayment sets first_payment_at once. It reports whether this call did it.
func (r *ReferralRepository) MarkFirstPayment(userID uint, at time.Time) (bool, error) {
	res := r.db.Model(&models.Referral{}).
		Where("referred_id = ? AND first_payment_at IS NULL", userID).
		UpdateColumns(map[string]interface{}{
			"status":           domain.ReferralPaid,
			"first_payment_at": at,
			"updated_at":       at,
		})
	return res.RowsAffected > 0, res.Error
}

// CountByReferrer returns how many referred users are registered and how many have paid.
func (r *ReferralRepository) CountByReferrer(referrerID uint) (registered, paid int64, err error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err = r.db.Model(&models.Referral{}).
		Select("status, COUNT(*) AS n").
		Where("referrer_id = ?", referrerID).
		Group("status").Scan(&rows).Error
	if err != nil {
		return 0, 0, err
	}
	for _, rw := range rows {
		switch rw.Status {
		case domain.ReferralRegistered:
			registered = rw.N
		case domain.ReferralPaid:
			paid = rw.N
		}
	}
	return registered, paid, nil
}
