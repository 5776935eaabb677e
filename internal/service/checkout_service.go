package service

import (
	"context"
	"fmt"
	"time"

	"talkinghead/internal/domain"
	"talkinghead/internal/logging"
	"talkinghead/internal/models"
	"talkinghead/internal/repository"
	"talkinghead/pkg/money"
	"talkinghead/pkg/payment"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// minListPrice keeps a discounted price from rounding down to zero.
const minListPrice = money.MinorPerMajor

type CheckoutConfig struct {
	Provider        string // recorded on gateway-backed payments
	Currency        string
	ReturnURL       string
	DiscountPercent int64
	MaxPrice        int64
}

// CheckoutService prices a scenario purchase and either settles it from the
// bonus balance or opens a gateway charge.
type CheckoutService struct {
	db        *gorm.DB
	scenarios *repository.ScenarioRepository
	payments  *repository.PaymentRepository
	ledger    *BonusLedger
	referrals *ReferralService
	gateway   payment.Provider
	cfg       CheckoutConfig
	log       *zap.Logger
	now       func() time.Time
}

func NewCheckoutService(
	db *gorm.DB,
	scenarios *repository.ScenarioRepository,
	payments *repository.PaymentRepository,
	ledger *BonusLedger,
	referrals *ReferralService,
	gateway payment.Provider,
	cfg CheckoutConfig,
	log *zap.Logger,
) *CheckoutService {
	if cfg.Currency == "" {
		cfg.Currency = domain.CurrencyRUB
	}
	if cfg.Provider == "" {
		cfg.Provider = domain.ProviderYooKassa
	}
	return &CheckoutService{
		db:        db,
		scenarios: scenarios,
		payments:  payments,
		ledger:    ledger,
		referrals: referrals,
		gateway:   gateway,
		cfg:       cfg,
		log:       logging.OrNop(log),
		now:       time.Now,
	}
}

type CheckoutRequest struct {
	UserID        uint
	ScenarioID    uint
	ListPrice     int64 // 0: use the scenario's own list price
	Description   string
	UseBonus      bool
	CustomerEmail string
}

// Quote is the price breakdown for a purchase. Price is after the referral
// discount and before the bonus offset; CashAmount is what the gateway charges.
type Quote struct {
	ScenarioID      uint
	ListPrice       int64
	Price           int64
	BonusUsed       int64
	CashAmount      int64
	DiscountApplied bool
	Balance         int64
}

type CheckoutResult struct {
	Payment         *models.Payment
	PaymentURL      string
	PaidWithBonus   bool
	BonusUsed       int64
	DiscountApplied bool
	Reused          bool // an open charge for the scenario was returned
}

// Quote prices a purchase without side effects.
func (s *CheckoutService) Quote(req CheckoutRequest) (*Quote, error) {
	q, _, err := s.quote(req)
	return q, err
}

func (s *CheckoutService) quote(req CheckoutRequest) (*Quote, *models.Scenario, error) {
	if req.UserID == 0 {
		return nil, nil, domain.ErrUnauthorized
	}
	if req.ScenarioID == 0 {
		return nil, nil, domain.Validationf("scenario_id is required")
	}
	sc, err := s.scenarios.GetByID(req.ScenarioID)
	if err != nil {
		return nil, nil, err
	}
	if sc.IsFree {
		return nil, nil, domain.Validationf("scenario %d is free", sc.ID)
	}
	if sc.IsPaid {
		return nil, nil, domain.Validationf("scenario %d is already paid", sc.ID)
	}
	if sc.OwnerID != nil && *sc.OwnerID != req.UserID {
		return nil, nil, domain.ErrForbidden
	}

	listPrice := req.ListPrice
	if sc.ListPrice > 0 {
		if listPrice != 0 && listPrice != sc.ListPrice {
			return nil, nil, domain.Validationf("amount %s does not match scenario price %s",
				money.Format(listPrice), money.Format(sc.ListPrice))
		}
		listPrice = sc.ListPrice
	}
	if listPrice < minListPrice {
		return nil, nil, domain.Validationf("amount must be at least %s", money.Format(minListPrice))
	}
	if s.cfg.MaxPrice > 0 && listPrice > s.cfg.MaxPrice {
		return nil, nil, domain.Validationf("amount must not exceed %s", money.Format(s.cfg.MaxPrice))
	}

	q := &Quote{ScenarioID: sc.ID, ListPrice: listPrice, Price: listPrice}
	eligible, err := s.referrals.IsFirstPurchaseDiscountEligible(req.UserID)
	if err != nil {
		return nil, nil, err
	}
	if eligible {
		// A pending discounted charge elsewhere holds the discount until it settles or is canceled.
		held, err := s.payments.HasOpenDiscount(req.UserID)
		if err != nil {
			return nil, nil, err
		}
		eligible = !held
	}
	if eligible && s.cfg.DiscountPercent > 0 {
		q.Price = money.ApplyDiscount(listPrice, s.cfg.DiscountPercent)
		q.DiscountApplied = true
	}

	bal, err := s.ledger.GetBalance(req.UserID)
	if err != nil {
		return nil, nil, err
	}
	q.Balance = bal.Balance
	if req.UseBonus && bal.Balance > 0 {
		q.BonusUsed = min(bal.Balance, q.Price)
	}
	q.CashAmount = q.Price - q.BonusUsed
	return q, sc, nil
}

// Checkout settles the purchase from bonus when it covers the whole price,
// otherwise creates a pending payment, reserves the bonus part and asks the
// gateway for a charge URL. A scenario has at most one open charge: a repeat
// checkout by the same user returns it, anyone else is refused.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	q, sc, err := s.quote(req)
	if err != nil {
		return nil, err
	}
	open, err := s.payments.GetOpenForScenario(sc.ID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return s.reuse(ctx, req.UserID, open)
	}
	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Scenario #%d", sc.ID)
	}
	if q.CashAmount <= 0 {
		return s.settleWithBonus(req.UserID, sc, q, description)
	}
	return s.openCharge(ctx, req, sc, q, description)
}

// reuse hands back an existing open charge to its owner.
func (s *CheckoutService) reuse(ctx context.Context, userID uint, p *models.Payment) (*CheckoutResult, error) {
	if p.UserID != userID {
		return nil, domain.Validationf("scenario %d has a payment in progress", p.ScenarioID)
	}
	if p.GatewayPaymentID == nil {
		if err := s.charge(ctx, p); err != nil {
			return nil, err
		}
	}
	s.log.Info("open payment reused",
		zap.Uint(logging.FieldUserID, userID),
		zap.Uint(logging.FieldPaymentID, p.ID),
		zap.Uint(logging.FieldScenarioID, p.ScenarioID))
	return &CheckoutResult{
		Payment:         p,
		PaymentURL:      p.PaymentURL,
		BonusUsed:       p.BonusUsed,
		DiscountApplied: p.DiscountApplied,
		Reused:          true,
	}, nil
}

func (s *CheckoutService) settleWithBonus(userID uint, sc *models.Scenario, q *Quote, description string) (*CheckoutResult, error) {
	now := s.now()
	p := &models.Payment{
		UserID:          userID,
		ScenarioID:      sc.ID,
		Amount:          q.Price,
		BonusUsed:       q.BonusUsed,
		DiscountApplied: q.DiscountApplied,
		Currency:        s.cfg.Currency,
		Provider:        domain.ProviderBonus,
		Status:          domain.PaymentSucceeded,
		IdempotenceKey:  uuid.NewString(),
		Description:     description,
		PaidAt:          &now,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.payments.WithTx(tx).Create(p); err != nil {
			return err
		}
		if _, err := s.ledger.WithTx(tx).Debit(userID, q.BonusUsed, domain.BonusSourcePayment, description, &p.ID); err != nil {
			return err
		}
		changed, err := s.scenarios.WithTx(tx).MarkPaid(sc.ID, userID, nil, now)
		if err != nil {
			return err
		}
		if !changed {
			return domain.Validationf("scenario %d is already paid", sc.ID)
		}
		claimed, err := s.referrals.WithTx(tx).ClaimFirstPayment(userID)
		if err != nil {
			return err
		}
		if q.DiscountApplied && !claimed {
			return domain.Validationf("first-purchase discount was already used")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("scenario paid with bonus",
		zap.Uint(logging.FieldUserID, userID),
		zap.Uint(logging.FieldPaymentID, p.ID),
		zap.Uint(logging.FieldScenarioID, sc.ID),
		zap.Int64("bonus_used", q.BonusUsed))
	return &CheckoutResult{Payment: p, PaidWithBonus: true, BonusUsed: q.BonusUsed, DiscountApplied: q.DiscountApplied}, nil
}

func (s *CheckoutService) openCharge(ctx context.Context, req CheckoutRequest, sc *models.Scenario, q *Quote, description string) (*CheckoutResult, error) {
	p := &models.Payment{
		UserID:          req.UserID,
		ScenarioID:      sc.ID,
		Amount:          q.Price,
		BonusUsed:       q.BonusUsed,
		DiscountApplied: q.DiscountApplied,
		Currency:        s.cfg.Currency,
		Provider:        s.cfg.Provider,
		Status:          domain.PaymentPending,
		IdempotenceKey:  uuid.NewString(),
		Description:     description,
		CustomerEmail:   req.CustomerEmail,
	}
	p.MarkOpen()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.payments.WithTx(tx).Create(p); err != nil {
			return err
		}
		p.Metadata = metadataJSON(paymentMetadata(p))
		if err := tx.Model(p).UpdateColumn("metadata", p.Metadata).Error; err != nil {
			return err
		}
		if q.BonusUsed > 0 {
			if _, err := s.ledger.WithTx(tx).Debit(req.UserID, q.BonusUsed, domain.BonusSourcePayment, description, &p.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.openConflict(req.UserID, sc.ID, q.DiscountApplied, err)
	}

	if err := s.charge(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("payment created",
		zap.Uint(logging.FieldUserID, req.UserID),
		zap.Uint(logging.FieldPaymentID, p.ID),
		zap.Uint(logging.FieldScenarioID, sc.ID),
		zap.String(logging.FieldGatewayPaymentID, *p.GatewayPaymentID),
		zap.Int64("amount", p.Amount),
		zap.Int64("bonus_used", p.BonusUsed))

	return &CheckoutResult{
		Payment:         p,
		PaymentURL:      p.PaymentURL,
		BonusUsed:       q.BonusUsed,
		DiscountApplied: q.DiscountApplied,
	}, nil
}

// openConflict explains a failed insert of a pending payment. Losing the
// race for a guard column is a caller error, anything else is returned as is.
func (s *CheckoutService) openConflict(userID, scenarioID uint, discounted bool, err error) error {
	if open, lerr := s.payments.GetOpenForScenario(scenarioID); lerr == nil && open != nil {
		return domain.Validationf("scenario %d has a payment in progress", scenarioID)
	}
	if discounted {
		if has, lerr := s.payments.HasOpenDiscount(userID); lerr == nil && has {
			return domain.Validationf("a discounted payment is already in progress")
		}
	}
	return err
}

// charge runs Resume for a checkout and cancels the payment, returning its
// bonus, when the gateway refuses it outright.
func (s *CheckoutService) charge(ctx context.Context, p *models.Payment) error {
	err := s.Resume(ctx, p)
	if err == nil || !payment.IsRejected(err) {
		return err
	}
	if cerr := s.db.Transaction(func(tx *gorm.DB) error {
		_, err := cancelPending(tx, s.payments, s.ledger, p, domain.BonusSourceCheckoutFailed, true, s.now())
		return err
	}); cerr != nil {
		s.log.Error("cancel refused payment", zap.Uint(logging.FieldPaymentID, p.ID), zap.Error(cerr))
	}
	return err
}

// Resume asks the gateway for the charge of a pending payment that has no
// gateway id yet and stores the answer. The payment's own idempotence key is
// reused, so a charge created by an earlier call whose reply was lost comes
// back instead of a second one. On error the payment is left pending; the
// caller cancels it when payment.IsRejected reports a definite refusal.
func (s *CheckoutService) Resume(ctx context.Context, p *models.Payment) error {
	log := s.log.With(
		zap.Uint(logging.FieldUserID, p.UserID),
		zap.Uint(logging.FieldPaymentID, p.ID),
		zap.Uint(logging.FieldScenarioID, p.ScenarioID))

	resp, err := s.gateway.InitiatePayment(ctx, payment.PaymentRequest{
		AmountMinor:    p.CashAmount(),
		Currency:       p.Currency,
		Description:    p.Description,
		ReturnURL:      s.cfg.ReturnURL,
		IdempotenceKey: p.IdempotenceKey,
		CustomerEmail:  p.CustomerEmail,
		Metadata:       paymentMetadata(p),
	})
	if err != nil {
		if payment.IsRejected(err) {
			log.Warn("gateway refused charge", zap.Error(err))
		} else {
			log.Warn("gateway charge outcome unknown, payment left pending", zap.Error(err))
		}
		return gatewayError(err)
	}

	if err := s.payments.SetGatewayRef(p.ID, resp.Reference, resp.CheckoutURL); err != nil {
		// The charge exists; the next sweep re-issues it under the same key and retries the write.
		log.Error("store gateway reference",
			logging.Alert(logging.AlertPaymentVerification),
			zap.String(logging.FieldGatewayPaymentID, resp.Reference),
			zap.String("payment_url", resp.CheckoutURL),
			zap.Error(err))
		return err
	}
	ref := resp.Reference
	p.GatewayPaymentID = &ref
	p.PaymentURL = resp.CheckoutURL
	return nil
}

// GetPayment returns the user's own payment. Other users' payments read as not found.
func (s *CheckoutService) GetPayment(userID, paymentID uint) (*models.Payment, error) {
	p, err := s.payments.GetByID(paymentID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domain.ErrPaymentNotFound
	}
	return p, nil
}
