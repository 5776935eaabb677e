package service

import (
	"talkinghead/internal/domain"
	"talkinghead/internal/logging"
	"talkinghead/internal/models"
	"talkinghead/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BonusLedger is the only writer of bonus balances.
type BonusLedger struct {
	repo *repository.BonusRepository
	log  *zap.Logger
}

func NewBonusLedger(repo *repository.BonusRepository, log *zap.Logger) *BonusLedger {
	return &BonusLedger{repo: repo, log: logging.OrNop(log)}
}

// WithTx returns a ledger whose writes join tx.
func (l *BonusLedger) WithTx(tx *gorm.DB) *BonusLedger {
	return &BonusLedger{repo: l.repo.WithTx(tx), log: l.log}
}

func (l *BonusLedger) Credit(userID uint, amount int64, source, description string, paymentID *uint) (*models.BonusTransaction, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	entry, err := l.repo.Credit(userID, amount, source, description, paymentID)
	if err != nil {
		return nil, err
	}
	l.log.Info("bonus credited",
		zap.Uint(logging.FieldUserID, userID), zap.Int64("amount", amount), zap.String("source", source))
	return entry, nil
}

// Debit fails with ErrInsufficientBalance and leaves the balance untouched
// when amount exceeds it.
func (l *BonusLedger) Debit(userID uint, amount int64, source, description string, paymentID *uint) (*models.BonusTransaction, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	entry, err := l.repo.Debit(userID, amount, source, description, paymentID)
	if err != nil {
		return nil, err
	}
	l.log.Info("bonus debited",
		zap.Uint(logging.FieldUserID, userID), zap.Int64("amount", amount), zap.String("source", source))
	return entry, nil
}

// Refund restores bonus that was spent on a purchase that did not go through.
func (l *BonusLedger) Refund(userID uint, amount int64, source, description string, paymentID *uint) (*models.BonusTransaction, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	entry, err := l.repo.Refund(userID, amount, source, description, paymentID)
	if err != nil {
		return nil, err
	}
	l.log.Info("bonus refunded",
		zap.Uint(logging.FieldUserID, userID), zap.Int64("amount", amount), zap.String("source", source))
	return entry, nil
}

// GetBalance returns a zero balance for users without a ledger row.
func (l *BonusLedger) GetBalance(userID uint) (*models.BonusBalance, error) {
	return l.repo.GetBalance(userID)
}

func (l *BonusLedger) Transactions(userID uint, limit, offset int) ([]models.BonusTransaction, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return l.repo.ListTransactions(userID, limit, offset)
}

// Audit lists users whose balance disagrees with their totals or transactions.
func (l *BonusLedger) Audit() ([]repository.LedgerDrift, error) {
	drift, err := l.repo.Audit()
	if err != nil {
		return nil, err
	}
	for _, d := range drift {
		l.log.Error("bonus ledger drift",
			zap.Uint(logging.FieldUserID, d.UserID),
			zap.Int64("balance", d.Balance),
			zap.Int64("total_earned", d.TotalEarned),
			zap.Int64("total_spent", d.TotalSpent),
			zap.Int64("ledger_sum", d.LedgerSum))
	}
	return drift, nil
}
