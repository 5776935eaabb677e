package service

import (
	"sync"
	"sync/atomic"
	"testing"

	"talkinghead/config"
	"talkinghead/internal/domain"
	"talkinghead/internal/models"
	"talkinghead/internal/repository"
	"talkinghead/internal/testutil"
	"talkinghead/pkg/ipallow"
	"talkinghead/pkg/payment"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

const gatewayIP = "185.71.76.5"

type recordedEvent struct {
	UserID uint
	Event  PaymentEvent
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) PublishToUser(userID uint, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{UserID: userID, Event: payload.(PaymentEvent)})
}

func (r *eventRecorder) all() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

type fixture struct {
	t          *testing.T
	db         *gorm.DB
	queries    *atomic.Int64
	logs       *observer.ObservedLogs
	gateway    *payment.StubProvider
	events     *eventRecorder
	payments   *repository.PaymentRepository
	scenarios  *repository.ScenarioRepository
	ledger     *BonusLedger
	referrals  *ReferralService
	checkout   *CheckoutService
	settlement *SettlementService
	reconciler *Reconciler
}

type fixtureOption func(*SettlementConfig)

func withoutCancelRefund() fixtureOption {
	return func(c *SettlementConfig) { c.RefundBonusOnCancel = false }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)

	// Count every statement so tests can assert that nothing touched the store.
	queries := &atomic.Int64{}
	count := func(*gorm.DB) { queries.Add(1) }
	cb := db.Callback()
	_ = cb.Query().Before("gorm:query").Register("test:count_query", count)
	_ = cb.Create().Before("gorm:create").Register("test:count_create", count)
	_ = cb.Update().Before("gorm:update").Register("test:count_update", count)
	_ = cb.Raw().Before("gorm:raw").Register("test:count_raw", count)
	_ = cb.Row().Before("gorm:row").Register("test:count_row", count)

	core, logs := observer.New(zap.InfoLevel)
	log := zap.New(core)

	gw := payment.NewStubProvider("")
	events := &eventRecorder{}

	payments := repository.NewPaymentRepository(db)
	scenarios := repository.NewScenarioRepository(db)
	ledger := NewBonusLedger(repository.NewBonusRepository(db), log)
	referrals := NewReferralService(repository.NewReferralRepository(db), ledger, log)

	scfg := SettlementConfig{CommissionPercent: 25, RefundBonusOnCancel: true}
	for _, o := range opts {
		o(&scfg)
	}
	checkout := NewCheckoutService(db, scenarios, payments, ledger, referrals, gw, CheckoutConfig{
		Provider:        domain.ProviderStub,
		Currency:        domain.CurrencyRUB,
		ReturnURL:       "https://example.test/return",
		DiscountPercent: 15,
		MaxPrice:        10_000_00,
	}, log)
	settlement := NewSettlementService(db, payments, scenarios, ledger, referrals, gw,
		ipallow.MustNew(ipallow.YooKassaRanges), events, scfg, log)
	reconciler := NewReconciler(payments, checkout, settlement, config.ReconcileConfig{
		PendingAge: 0,
		AbandonAge: 0,
		BatchSize:  10,
	}, log)

	return &fixture{
		t: t, db: db, queries: queries, logs: logs, gateway: gw, events: events,
		payments: payments, scenarios: scenarios, ledger: ledger, referrals: referrals,
		checkout: checkout, settlement: settlement, reconciler: reconciler,
	}
}

func (f *fixture) scenario(listPrice int64, owner *uint) *models.Scenario {
	f.t.Helper()
	sc := &models.Scenario{ListPrice: listPrice, OwnerID: owner}
	if err := f.scenarios.Create(sc); err != nil {
		f.t.Fatalf("create scenario: %v", err)
	}
	return sc
}

func (f *fixture) fund(userID uint, amount int64) {
	f.t.Helper()
	if _, err := f.ledger.Credit(userID, amount, domain.BonusSourceReferralCommission, "seed", nil); err != nil {
		f.t.Fatalf("fund: %v", err)
	}
}

// refer makes referrer's code the attribution for referred.
func (f *fixture) refer(referrer, referred uint) {
	f.t.Helper()
	rc, err := f.referrals.GetOrCreateCode(referrer)
	if err != nil {
		f.t.Fatal(err)
	}
	if err := f.referrals.LinkReferral(rc.Code, referred); err != nil {
		f.t.Fatal(err)
	}
}

func (f *fixture) balance(userID uint) *models.BonusBalance {
	f.t.Helper()
	b, err := f.ledger.GetBalance(userID)
	if err != nil {
		f.t.Fatal(err)
	}
	return b
}

func (f *fixture) payment(id uint) *models.Payment {
	f.t.Helper()
	p, err := f.payments.GetByID(id)
	if err != nil {
		f.t.Fatal(err)
	}
	return p
}

func (f *fixture) scenarioByID(id uint) *models.Scenario {
	f.t.Helper()
	sc, err := f.scenarios.GetByID(id)
	if err != nil {
		f.t.Fatal(err)
	}
	return sc
}

func (f *fixture) transactions(userID uint) []models.BonusTransaction {
	f.t.Helper()
	list, _, err := f.ledger.Transactions(userID, 100, 0)
	if err != nil {
		f.t.Fatal(err)
	}
	return list
}

func (f *fixture) alerts() int {
	return f.logs.FilterField(zap.String("alert", "payment_verification")).Len()
}

// assertLedger checks balance == earned - spent, balance >= 0 and the
// transaction sum for every user with a row.
func (f *fixture) assertLedger() {
	f.t.Helper()
	drift, err := f.ledger.Audit()
	if err != nil {
		f.t.Fatal(err)
	}
	if len(drift) != 0 {
		f.t.Fatalf("ledger drift: %+v", drift)
	}
}
