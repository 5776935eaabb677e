package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"talkinghead/internal/domain"
	"talkinghead/internal/logging"
	"talkinghead/internal/models"
	"talkinghead/internal/repository"
	"talkinghead/pkg/ipallow"
	"talkinghead/pkg/money"
	"talkinghead/pkg/payment"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Settlement outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeCanceled  = "canceled"
	OutcomeDuplicate = "duplicate" // payment was already terminal
	OutcomeIgnored   = "ignored"   // event type this core does not act on
	OutcomePending   = "pending"   // gateway has not decided yet
)

type SettlementConfig struct {
	CommissionPercent   int64
	RefundBonusOnCancel bool
}

// Notification is an inbound gateway event. Only the event name and the
// gateway payment id are used; everything else is re-read from the gateway.
type Notification struct {
	Event            string
	GatewayPaymentID string
}

type SettlementResult struct {
	Outcome   string
	PaymentID uint
	Status    string
}

// SettlementService turns verified gateway state into terminal payment
// state, scenario unlock and referral commission.
type SettlementService struct {
	db        *gorm.DB
	payments  *repository.PaymentRepository
	scenarios *repository.ScenarioRepository
	ledger    *BonusLedger
	referrals *ReferralService
	gateway   payment.Provider
	allow     *ipallow.List
	events    EventPublisher
	cfg       SettlementConfig
	log       *zap.Logger
	now       func() time.Time
}

func NewSettlementService(
	db *gorm.DB,
	payments *repository.PaymentRepository,
	scenarios *repository.ScenarioRepository,
	ledger *BonusLedger,
	referrals *ReferralService,
	gateway payment.Provider,
	allow *ipallow.List,
	events EventPublisher,
	cfg SettlementConfig,
	log *zap.Logger,
) *SettlementService {
	return &SettlementService{
		db:        db,
		payments:  payments,
		scenarios: scenarios,
		ledger:    ledger,
		referrals: referrals,
		gateway:   gateway,
		allow:     allow,
		events:    events,
		cfg:       cfg,
		log:       logging.OrNop(log),
		now:       time.Now,
	}
}

// CheckOrigin rejects a notification sender outside the gateway's address
// ranges. The webhook handler calls it before reading the body.
func (s *SettlementService) CheckOrigin(remoteIP string) error {
	if s.allow.Allowed(remoteIP) {
		return nil
	}
	s.log.Warn("notification from outside gateway ranges",
		logging.Alert(logging.AlertPaymentVerification),
		zap.String(logging.FieldRemoteIP, remoteIP))
	return domain.ErrForbidden
}

// Process handles a notification delivered from remoteIP. The origin check
// runs before anything else; the notification body is never trusted for
// status, amount or ownership.
func (s *SettlementService) Process(ctx context.Context, remoteIP string, n Notification) (*SettlementResult, error) {
	if err := s.CheckOrigin(remoteIP); err != nil {
		return nil, err
	}
	log := s.log.With(
		zap.String(logging.FieldRemoteIP, remoteIP),
		zap.String(logging.FieldEvent, n.Event),
		zap.String(logging.FieldGatewayPaymentID, n.GatewayPaymentID))

	var expected string
	switch n.Event {
	case domain.EventPaymentSucceeded:
		expected = payment.StatusSucceeded
	case domain.EventPaymentCanceled:
		expected = payment.StatusCanceled
	default:
		log.Info("notification ignored")
		return &SettlementResult{Outcome: OutcomeIgnored}, nil
	}
	if n.GatewayPaymentID == "" {
		return nil, domain.Validationf("object.id is required")
	}

	remote, err := s.gateway.GetPayment(ctx, n.GatewayPaymentID)
	if err != nil {
		log.Error("gateway status query failed", zap.Error(err))
		return nil, gatewayError(err)
	}
	if remote.Status != expected {
		log.Warn("notification contradicts gateway status",
			logging.Alert(logging.AlertPaymentVerification),
			zap.String("gateway_status", remote.Status))
		return nil, fmt.Errorf("%w: event %s but gateway reports %s", domain.ErrVerificationMismatch, n.Event, remote.Status)
	}
	return s.settle(remote, log)
}

// Reconcile applies the gateway's current status for gatewayID. It is for
// server-initiated sweeps, so there is no origin to check.
func (s *SettlementService) Reconcile(ctx context.Context, gatewayID string) (*SettlementResult, error) {
	log := s.log.With(zap.String(logging.FieldGatewayPaymentID, gatewayID), zap.String(logging.FieldEvent, "reconcile"))
	remote, err := s.gateway.GetPayment(ctx, gatewayID)
	if err != nil {
		return nil, gatewayError(err)
	}
	switch remote.Status {
	case payment.StatusSucceeded, payment.StatusCanceled:
		return s.settle(remote, log)
	default:
		return &SettlementResult{Outcome: OutcomePending, Status: remote.Status}, nil
	}
}

// Abandon cancels a pending payment whose charge the gateway refused, so no
// gateway charge exists for it.
func (s *SettlementService) Abandon(p *models.Payment) (bool, error) {
	if p.GatewayPaymentID != nil {
		return false, domain.ErrInvalidTransition
	}
	var canceled bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		canceled, err = cancelPending(tx, s.payments, s.ledger, p, domain.BonusSourceCheckoutFailed, true, s.now())
		return err
	})
	if err != nil {
		return false, err
	}
	if canceled {
		s.log.Info("abandoned payment canceled",
			zap.Uint(logging.FieldPaymentID, p.ID), zap.Uint(logging.FieldUserID, p.UserID))
		publish(s.events, p, domain.EventPaymentCanceled)
	}
	return canceled, nil
}

// settle locates the local payment for a verified terminal gateway state,
// checks that the gateway agrees on amount and local id, and applies it.
func (s *SettlementService) settle(remote *payment.PaymentResponse, log *zap.Logger) (*SettlementResult, error) {
	p, err := s.payments.GetByGatewayID(remote.Reference)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			log.Warn("notification for unknown payment")
		}
		return nil, err
	}
	log = log.With(zap.Uint(logging.FieldPaymentID, p.ID), zap.Uint(logging.FieldUserID, p.UserID))

	if err := s.verify(p, remote); err != nil {
		log.Warn("gateway payment does not match local payment",
			logging.Alert(logging.AlertPaymentVerification), zap.Error(err))
		return nil, err
	}
	if domain.IsTerminalPayment(p.Status) {
		log.Info("duplicate notification", zap.String("status", p.Status))
		return &SettlementResult{Outcome: OutcomeDuplicate, PaymentID: p.ID, Status: p.Status}, nil
	}

	if remote.Status == payment.StatusCanceled {
		return s.applyCanceled(p, log)
	}
	return s.applySucceeded(p, log)
}

func (s *SettlementService) verify(p *models.Payment, remote *payment.PaymentResponse) error {
	if remote.AmountMinor != p.CashAmount() {
		return fmt.Errorf("%w: gateway amount %s, expected %s", domain.ErrVerificationMismatch,
			money.Format(remote.AmountMinor), money.Format(p.CashAmount()))
	}
	if got := remote.Metadata[payment.MetaPaymentID]; got != strconv.FormatUint(uint64(p.ID), 10) {
		return fmt.Errorf("%w: gateway metadata payment_id %q, expected %d", domain.ErrVerificationMismatch, got, p.ID)
	}
	return nil
}

func (s *SettlementService) applySucceeded(p *models.Payment, log *zap.Logger) (*SettlementResult, error) {
	now := s.now()
	var (
		applied    bool
		commission int64
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		ok, err := s.payments.WithTx(tx).Transition(p.ID, domain.PaymentPending, domain.PaymentSucceeded, now)
		if err != nil || !ok {
			return err
		}
		applied = true

		scenarios := s.scenarios.WithTx(tx)
		sc, err := scenarios.GetByID(p.ScenarioID)
		switch {
		case errors.Is(err, domain.ErrScenarioNotFound):
			// Deleted after checkout. The payment still counts for referral purposes.
			log.Warn("settled payment for missing scenario", zap.Uint(logging.FieldScenarioID, p.ScenarioID))
		case err != nil:
			return err
		default:
			changed, err := scenarios.MarkPaid(sc.ID, p.UserID, p.GatewayPaymentID, now)
			if err != nil {
				return err
			}
			if !changed {
				// Money was taken twice for one scenario; the second charge needs a manual refund.
				log.Warn("scenario was already paid",
					logging.Alert(logging.AlertPaymentVerification),
					zap.Uint(logging.FieldScenarioID, sc.ID))
			}
			if sc.IsFree {
				return nil
			}
		}

		referrals := s.referrals.WithTx(tx)
		ref, err := referrals.ReferrerOf(p.UserID)
		if err != nil || ref == nil {
			return err
		}
		commission = money.Percent(p.Amount, s.cfg.CommissionPercent)
		if commission > 0 {
			desc := fmt.Sprintf("referral commission for payment #%d", p.ID)
			if _, err := s.ledger.WithTx(tx).Credit(ref.ReferrerID, commission, domain.BonusSourceReferralCommission, desc, &p.ID); err != nil {
				return err
			}
		}
		return referrals.MarkFirstPayment(p.UserID)
	})
	if err != nil {
		log.Error("settlement failed", zap.Error(err))
		return nil, err
	}
	if !applied {
		log.Info("duplicate notification lost the race")
		return s.duplicate(p)
	}

	p.Status = domain.PaymentSucceeded
	p.PaidAt = &now
	log.Info("payment succeeded",
		zap.Uint(logging.FieldScenarioID, p.ScenarioID),
		zap.Int64("amount", p.Amount),
		zap.Int64("commission", commission))
	publish(s.events, p, domain.EventPaymentSucceeded)
	return &SettlementResult{Outcome: OutcomeSucceeded, PaymentID: p.ID, Status: p.Status}, nil
}

func (s *SettlementService) applyCanceled(p *models.Payment, log *zap.Logger) (*SettlementResult, error) {
	var canceled bool
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		canceled, err = cancelPending(tx, s.payments, s.ledger, p, domain.BonusSourcePaymentCanceled, s.cfg.RefundBonusOnCancel, s.now())
		return err
	})
	if err != nil {
		log.Error("cancel failed", zap.Error(err))
		return nil, err
	}
	if !canceled {
		return s.duplicate(p)
	}
	log.Info("payment canceled", zap.Int64("bonus_used", p.BonusUsed), zap.Bool("bonus_refunded", s.cfg.RefundBonusOnCancel && p.BonusUsed > 0))
	publish(s.events, p, domain.EventPaymentCanceled)
	return &SettlementResult{Outcome: OutcomeCanceled, PaymentID: p.ID, Status: p.Status}, nil
}

// duplicate reports the state written by whichever delivery won.
func (s *SettlementService) duplicate(p *models.Payment) (*SettlementResult, error) {
	cur, err := s.payments.GetByID(p.ID)
	if err != nil {
		return nil, err
	}
	return &SettlementResult{Outcome: OutcomeDuplicate, PaymentID: cur.ID, Status: cur.Status}, nil
}
