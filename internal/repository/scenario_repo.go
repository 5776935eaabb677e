package repository

import (
	"errors"
	"time"

	"talkinghead/internal/domain"
	"talkinghead/internal/models"

	"gorm.io/gorm"
)

type ScenarioRepository struct {
	db *gorm.DB
}

func NewScenarioRepository(db *gorm.DB) *ScenarioRepository {
	return &ScenarioRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *ScenarioRepository) WithTx(tx *gorm.DB) *ScenarioRepository {
	return &ScenarioRepository{db: tx}
}

func (r *ScenarioRepository) Create(s *models.Scenario) error {
	return r.db.Create(s).Error
}

func (r *ScenarioRepository) GetByID(id uint) (*models.Scenario, error) {
	var s models.Scenario
	err := r.db.First(&s, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrScenarioNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// MarkPaid flips is_paid to true and binds the owner. The update only
// matches unpaid rows, so is_paid never goes back and a paid scenario keeps
// its first owner. It reports whether the row changed.
func (r *ScenarioRepository) MarkPaid(id, ownerID uint, gatewayID *string, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"is_paid":    true,
		"owner_id":   ownerID,
		"paid_at":    at,
		"updated_at": at,
	}
	if gatewayID != nil {
		updates["payment_id"] = *gatewayID
	}
	res := r.db.Model(&models.Scenario{}).
		Where("id = ? AND is_paid = ?", id, false).
		UpdateColumns(updates)
	return res.RowsAffected > 0, res.Error
}

// CountByOwner counts every scenario the user has ever owned, deleted ones included.
func (r *ScenarioRepository) CountByOwner(ownerID uint) (int64, error) {
	var n int64
	err := r.db.Unscoped().Model(&models.Scenario{}).Where("owner_id = ?", ownerID).Count(&n).Error
	return n, err
}
