package service

import (
	"errors"
	"strings"
	"time"

	"talkinghead/internal/domain"
	"talkinghead/internal/logging"
	"talkinghead/internal/models"
	"talkinghead/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReferralService owns referral codes and the referrer/referred graph.
//
// Unknown codes, self-referral and repeat attribution are silent no-ops so
// callers cannot probe which codes exist.
type ReferralService struct {
	referralRepo *repository.ReferralRepository
	ledger       *BonusLedger
	log          *zap.Logger
	now          func() time.Time
}

func NewReferralService(referralRepo *repository.ReferralRepository, ledger *BonusLedger, log *zap.Logger) *ReferralService {
	return &ReferralService{
		referralRepo: referralRepo,
		ledger:       ledger,
		log:          logging.OrNop(log),
		now:          time.Now,
	}
}

// WithTx returns a service whose reads and writes join tx.
func (s *ReferralService) WithTx(tx *gorm.DB) *ReferralService {
	cp := *s
	cp.referralRepo = s.referralRepo.WithTx(tx)
	cp.ledger = s.ledger.WithTx(tx)
	return &cp
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

// RecordClick counts a landing visit carrying code.
func (s *ReferralService) RecordClick(code string) error {
	code = normalizeCode(code)
	if code == "" {
		return nil
	}
	if _, err := s.referralRepo.IncrementClicks(code); err != nil {
		return err
	}
	return nil
}

// LinkReferral attributes referredID to the owner of code. First attribution wins.
func (s *ReferralService) LinkReferral(code string, referredID uint) error {
	code = normalizeCode(code)
	if code == "" || referredID == 0 {
		return nil
	}
	rc, err := s.referralRepo.GetByCode(code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if rc.UserID == referredID {
		return nil
	}
	created, err := s.referralRepo.CreateReferral(&models.Referral{
		ReferrerID: rc.UserID,
		ReferredID: referredID,
		Status:     domain.ReferralRegistered,
	})
	if err != nil {
		return err
	}
	if created {
		s.log.Info("referral linked",
			zap.Uint("referrer_id", rc.UserID), zap.Uint(logging.FieldUserID, referredID))
	}
	return nil
}

// IsFirstPurchaseDiscountEligible is true while the user is referred and has not paid yet.
func (s *ReferralService) IsFirstPurchaseDiscountEligible(userID uint) (bool, error) {
	ref, err := s.referralRepo.GetByReferredID(userID)
	if err != nil {
		return false, err
	}
	return ref != nil && ref.FirstPaymentAt == nil, nil
}

// MarkFirstPayment records the user's first successful payment. Repeat calls are no-ops.
func (s *ReferralService) MarkFirstPayment(userID uint) error {
	_, err := s.ClaimFirstPayment(userID)
	return err
}

// ClaimFirstPayment is MarkFirstPayment reporting whether this call did the
// marking. A discounted purchase must win the claim to keep its discount.
func (s *ReferralService) ClaimFirstPayment(userID uint) (bool, error) {
	marked, err := s.referralRepo.MarkFirstPayment(userID, s.now())
	if err != nil {
		return false, err
	}
	if marked {
		s.log.Info("referral first payment", zap.Uint(logging.FieldUserID, userID))
	}
	return marked, nil
}

// ReferrerOf returns the user's Referral, or nil when nobody referred them.
func (s *ReferralService) ReferrerOf(userID uint) (*models.Referral, error) {
	return s.referralRepo.GetByReferredID(userID)
}

func (s *ReferralService) GetOrCreateCode(userID uint) (*models.ReferralCode, error) {
	return s.referralRepo.GetOrCreateCode(userID)
}

type ReferralStats struct {
	Code        string `json:"code"`
	Clicks      int64  `json:"clicks"`
	Registered  int64  `json:"registered"`
	Paid        int64  `json:"paid"`
	Balance     int64  `json:"-"`
	TotalEarned int64  `json:"-"`
}

// Stats summarises a referrer's funnel and bonus.
func (s *ReferralService) Stats(userID uint) (*ReferralStats, error) {
	rc, err := s.referralRepo.GetOrCreateCode(userID)
	if err != nil {
		return nil, err
	}
	registered, paid, err := s.referralRepo.CountByReferrer(userID)
	if err != nil {
		return nil, err
	}
	bal, err := s.ledger.GetBalance(userID)
	if err != nil {
		return nil, err
	}
	return &ReferralStats{
		Code:        rc.Code,
		Clicks:      rc.Clicks,
		Registered:  registered + paid,
		Paid:        paid,
		Balance:     bal.Balance,
		TotalEarned: bal.TotalEarned,
	}, nil
}
