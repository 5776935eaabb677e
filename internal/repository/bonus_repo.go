package repository

import (
	"errors"
	"fmt"
	"time"

	"talkinghead/internal/domain"
	"talkinghead/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BonusRepository holds the ledger primitives. Every balance change is a
// single conditional UPDATE plus an appended transaction row, executed in
// one database transaction.
type BonusRepository struct {
	db *gorm.DB
}

func NewBonusRepository(db *gorm.DB) *BonusRepository {
	return &BonusRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *BonusRepository) WithTx(tx *gorm.DB) *BonusRepository {
	return &BonusRepository{db: tx}
}

// GetBalance returns the user's balance row, or a zero row if none exists yet.
func (r *BonusRepository) GetBalance(userID uint) (*models.BonusBalance, error) {
	var b models.BonusBalance
	err := r.db.Where("user_id = ?", userID).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.BonusBalance{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Credit adds amount to balance and total_earned and appends an earned row.
func (r *BonusRepository) Credit(userID uint, amount int64, source, description string, paymentID *uint) (*models.BonusTransaction, error) {
	var entry *models.BonusTransaction
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := ensureBalanceRow(tx, userID); err != nil {
			return err
		}
		res := tx.Model(&models.BonusBalance{}).
			Where("user_id = ?", userID).
			UpdateColumns(map[string]interface{}{
				"balance":      gorm.Expr("balance + ?", amount),
				"total_earned": gorm.Expr("total_earned + ?", amount),
				"updated_at":   time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		entry = &models.BonusTransaction{
			UserID: userID, Amount: amount, Type: domain.BonusTxEarned,
			Source: source, PaymentID: paymentID, Description: description,
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Debit subtracts amount from balance only if the balance covers it. The
// check and the write are the same statement, so concurrent debits cannot
// both pass.
func (r *BonusRepository) Debit(userID uint, amount int64, source, description string, paymentID *uint) (*models.BonusTransaction, error) {
	var entry *models.BonusTransaction
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.BonusBalance{}).
			Where("user_id = ? AND balance >= ?", userID, amount).
			UpdateColumns(map[string]interface{}{
				"balance":     gorm.Expr("balance - ?", amount),
				"total_spent": gorm.Expr("total_spent + ?", amount),
				"updated_at":  time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrInsufficientBalance
		}
		entry = &models.BonusTransaction{
			UserID: userID, Amount: -amount, Type: domain.BonusTxSpend,
			Source: source, PaymentID: paymentID, Description: description,
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Refund returns previously spent bonus: balance goes up, total_spent goes
// down. It never refunds more than the user has spent.
func (r *BonusRepository) Refund(userID uint, amount int64, source, description string, paymentID *uint) (*models.BonusTransaction, error) {
	var entry *models.BonusTransaction
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.BonusBalance{}).
			Where("user_id = ? AND total_spent >= ?", userID, amount).
			UpdateColumns(map[string]interface{}{
				"balance":     gorm.Expr("balance + ?", amount),
				"total_spent": gorm.Expr("total_spent - ?", amount),
				"updated_at":  time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: refund exceeds total spent", domain.ErrInvalidAmount)
		}
		entry = &models.BonusTransaction{
			UserID: userID, Amount: amount, Type: domain.BonusTxRefund,
			Source: source, PaymentID: paymentID, Description: description,
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ListTransactions returns a user's ledger rows, newest first.
func (r *BonusRepository) ListTransactions(userID uint, limit, offset int) ([]models.BonusTransaction, int64, error) {
	var total int64
	if err := r.db.Model(&models.BonusTransaction{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.BonusTransaction
	err := r.db.Where("user_id = ?", userID).Order("id DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, total, err
}

// LedgerDrift is a balance row that disagrees with its own totals or with
// the sum of its transactions.
type LedgerDrift struct {
	UserID      uint  `json:"user_id"`
	Balance     int64 `json:"balance"`
	TotalEarned int64 `json:"total_earned"`
	TotalSpent  int64 `json:"total_spent"`
	LedgerSum   int64 `json:"ledger_sum"`
}

// Audit returns every balance row violating a ledger invariant.
func (r *BonusRepository) Audit() ([]LedgerDrift, error) {
	var rows []LedgerDrift
	err := r.db.Raw(`
		SELECT b.user_id, b.balance, b.total_earned, b.total_spent,
		       COALESCE(SUM(t.amount), 0) AS ledger_sum
		FROM bonus_balances b
		LEFT JOIN bonus_transactions t ON t.user_id = b.user_id
		GROUP BY b.user_id, b.balance, b.total_earned, b.total_spent
		HAVING b.balance <> b.total_earned - b.total_spent
		    OR b.balance < 0
		    OR COALESCE(SUM(t.amount), 0) <> b.balance
		ORDER BY b.user_id`).Scan(&rows).Error
	return rows, err
}

func ensureBalanceRow(tx *gorm.DB, userID uint) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.BonusBalance{UserID: userID}).Error
}
