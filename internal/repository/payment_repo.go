package repository

import (
	"errors"
	"time"

	"talkinghead/internal/domain"
	"talkinghead/internal/models"

	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *PaymentRepository) WithTx(tx *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: tx}
}

func (r *PaymentRepository) Create(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *PaymentRepository) GetByID(id uint) (*models.Payment, error) {
	var p models.Payment
	err := r.db.First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByGatewayID(gatewayID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("gateway_payment_id = ?", gatewayID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOpenForScenario returns the scenario's pending payment, or nil when it has none.
func (r *PaymentRepository) GetOpenForScenario(scenarioID uint) (*models.Payment, error) {
	var list []models.Payment
	if err := r.db.Where("open_scenario_id = ?", scenarioID).Limit(1).Find(&list).Error; err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// HasOpenDiscount reports whether the user has a pending payment that carries
// the first-purchase discount.
func (r *PaymentRepository) HasOpenDiscount(userID uint) (bool, error) {
	var n int64
	err := r.db.Model(&models.Payment{}).Where("open_discount_user_id = ?", userID).Count(&n).Error
	return n > 0, err
}

// Transition moves a payment from one status to another with a conditional
// update. It returns false when the row was no longer in the from status,
// which means another delivery got there first.
func (r *PaymentRepository) Transition(id uint, from, to string, at time.Time) (bool, error) {
	if !domain.CanTransitionPayment(from, to) {
		return false, domain.ErrInvalidTransition
	}
	updates := map[string]interface{}{
		"status":                to,
		"updated_at":            at,
		"open_scenario_id":      gorm.Expr("NULL"),
		"open_discount_user_id": gorm.Expr("NULL"),
	}
	switch to {
	case domain.PaymentSucceeded:
		updates["paid_at"] = at
	case domain.PaymentCanceled:
		updates["canceled_at"] = at
	}
	res := r.db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumns(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetGatewayRef stores the gateway id and redirect URL on a pending payment.
func (r *PaymentRepository) SetGatewayRef(id uint, gatewayID, paymentURL string) error {
	res := r.db.Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, domain.PaymentPending).
		UpdateColumns(map[string]interface{}{
			"gateway_payment_id": gatewayID,
			"payment_url":        paymentURL,
			"updated_at":         time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

// ListStalePending returns pending payments created before the cutoff, oldest first.
func (r *PaymentRepository) ListStalePending(before time.Time, limit int) ([]models.Payment, error) {
	var list []models.Payment
	err := r.db.Where("status = ? AND created_at < ?", domain.PaymentPending, before).
		Order("created_at ASC").Limit(limit).Find(&list).Error
	return list, err
}
