package service

import (
	"context"
	"time"

	"talkinghead/config"
	"talkinghead/internal/logging"
	"talkinghead/internal/models"
	"talkinghead/internal/repository"
	"talkinghead/pkg/payment"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// ReconcileItem is the sweep outcome for one payment.
type ReconcileItem struct {
	PaymentID uint
	GatewayID string
	Outcome   string
	Status    string
	Err       error
}

type ReconcileReport struct {
	Checked int
	Items   []ReconcileItem
}

// Count returns how many items ended with outcome.
func (r *ReconcileReport) Count(outcome string) int {
	n := 0
	for _, it := range r.Items {
		if it.Outcome == outcome {
			n++
		}
	}
	return n
}

// Errors returns how many items failed.
func (r *ReconcileReport) Errors() int {
	n := 0
	for _, it := range r.Items {
		if it.Err != nil {
			n++
		}
	}
	return n
}

// Reconciler periodically asks the gateway about payments that stayed
// pending, covering notifications that never arrived and charges whose
// creation reply was lost.
type Reconciler struct {
	payments   *repository.PaymentRepository
	checkout   *CheckoutService
	settlement *SettlementService
	cfg        config.ReconcileConfig
	log        *zap.Logger
	now        func() time.Time

	scheduler gocron.Scheduler
}

func NewReconciler(payments *repository.PaymentRepository, checkout *CheckoutService, settlement *SettlementService, cfg config.ReconcileConfig, log *zap.Logger) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Reconciler{
		payments:   payments,
		checkout:   checkout,
		settlement: settlement,
		cfg:        cfg,
		log:        logging.OrNop(log).Named("reconciler"),
		now:        time.Now,
	}
}

// RunOnce sweeps one batch of stale pending payments.
func (r *Reconciler) RunOnce(ctx context.Context) (*ReconcileReport, error) {
	now := r.now()
	stale, err := r.payments.ListStalePending(now.Add(-r.cfg.PendingAge), r.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	report := &ReconcileReport{Checked: len(stale)}
	for i := range stale {
		if ctx.Err() != nil {
			break
		}
		report.Items = append(report.Items, r.reconcile(ctx, &stale[i], now))
	}
	if report.Checked > 0 {
		r.log.Info("sweep finished",
			zap.Int("checked", report.Checked),
			zap.Int("succeeded", report.Count(OutcomeSucceeded)),
			zap.Int("canceled", report.Count(OutcomeCanceled)),
			zap.Int("errors", report.Errors()))
	}
	return report, nil
}

func (r *Reconciler) reconcile(ctx context.Context, p *models.Payment, now time.Time) ReconcileItem {
	item := ReconcileItem{PaymentID: p.ID, Status: p.Status}
	if p.GatewayPaymentID == nil {
		return r.resume(ctx, p, now)
	}

	item.GatewayID = *p.GatewayPaymentID
	res, err := r.settlement.Reconcile(ctx, item.GatewayID)
	if err != nil {
		r.log.Warn("reconcile failed",
			zap.Uint(logging.FieldPaymentID, p.ID),
			zap.String(logging.FieldGatewayPaymentID, item.GatewayID),
			zap.Error(err))
		item.Err = err
		return item
	}
	item.Outcome = res.Outcome
	item.Status = res.Status
	return item
}

// resume re-issues the charge of a payment that never stored a gateway id.
// The same idempotence key returns a charge that already exists. Only a
// definite refusal cancels the payment; an unknown outcome is retried on the
// next sweep and alerted once the payment is older than AbandonAge.
func (r *Reconciler) resume(ctx context.Context, p *models.Payment, now time.Time) ReconcileItem {
	item := ReconcileItem{PaymentID: p.ID, Status: p.Status}
	log := r.log.With(zap.Uint(logging.FieldPaymentID, p.ID), zap.Uint(logging.FieldUserID, p.UserID))

	err := r.checkout.Resume(ctx, p)
	switch {
	case err == nil:
		item.GatewayID = *p.GatewayPaymentID
		item.Outcome = OutcomePending
		log.Info("gateway charge recovered", zap.String(logging.FieldGatewayPaymentID, item.GatewayID))
	case payment.IsRejected(err):
		canceled, aerr := r.settlement.Abandon(p)
		item.Err = aerr
		if canceled {
			item.Outcome = OutcomeCanceled
			item.Status = p.Status
		}
	default:
		item.Err = err
		if now.Sub(p.CreatedAt) >= r.cfg.AbandonAge {
			log.Error("payment without gateway charge is still unresolved",
				logging.Alert(logging.AlertPaymentVerification),
				zap.Duration("age", now.Sub(p.CreatedAt)),
				zap.Error(err))
		}
	}
	return item
}

// Start runs RunOnce every cfg.Interval until Stop. Overlapping runs are skipped.
func (r *Reconciler) Start() error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = s.NewJob(
		gocron.DurationJob(r.cfg.Interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Interval)
			defer cancel()
			if _, err := r.RunOnce(ctx); err != nil {
				r.log.Error("sweep failed", zap.Error(err))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return err
	}
	s.Start()
	r.scheduler = s
	r.log.Info("started", zap.Duration("interval", r.cfg.Interval))
	return nil
}

func (r *Reconciler) Stop() error {
	if r.scheduler == nil {
		return nil
	}
	return r.scheduler.Shutdown()
}
