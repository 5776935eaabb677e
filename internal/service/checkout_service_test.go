package service

import (
	"context"
	"errors"
	"testing"

	"talkinghead/internal/domain"
	"talkinghead/internal/models"
	"talkinghead/pkg/payment"
)

func TestCheckoutCreatesPendingPayment(t *testing.T) {
	f := newFixture(t)
	sc := f.scenario(0, nil)

	res, err := f.checkout.Checkout(context.Background(), CheckoutRequest{UserID: 1, ScenarioID: sc.ID, ListPrice: 1000})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if res.PaidWithBonus || res.PaymentURL == "" || res.DiscountApplied {
		t.Fatalf("result = %+v", res)
	}
	p := f.payment(res.Payment.ID)
	if p.Status != domain.PaymentPending || p.Amount != 1000 || p.BonusUsed != 0 {
		t.Fatalf("payment = %+v", p)
	}
	if p.GatewayPaymentID == nil || p.PaymentURL != res.PaymentURL {
		t.Fatalf("gateway ref not stored: %+v", p)
	}
	remote, err := f.gateway.GetPayment(context.Background(), *p.GatewayPaymentID)
	if err != nil {
		t.Fatal(err)
	}
	if remote.AmountMinor != 1000 || remote.Metadata[payment.MetaPaymentID] == "" {
		t.Fatalf("gateway charge = %+v", remote)
	}
	if f.scenarioByID(sc.ID).IsPaid {
		t.Fatal("scenario paid before settlement")
	}
}

func TestCheckoutBonusOnly(t *testing.T) {
	f := newFixture(t)
	sc := f.scenario(0, nil)
	f.fund(1, 1000)

	res, err := f.checkout.Checkout(context.Background(), CheckoutRequest{UserID: 1, ScenarioID: sc.ID, ListPrice: 1000, UseBonus: true})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if !res.PaidWithBonus || res.BonusUsed != 1000 || res.PaymentURL != "" {
		t.Fatalf("result = %+v", res)
	}
	if f.gateway.InitiateCalls() != 0 {
		t.Fatal("bonus-only checkout called the gateway")
	}
	b := f.balance(1)
	if b.Balance != 0 || b.TotalSpent != 1000 {
		t.Fatalf("balance = %+v", b)
	}
	got := f.scenarioByID(sc.ID)
	if !got.IsPaid || got.OwnerID == nil || *got.OwnerID != 1 {
		t.Fatalf("scenario = %+v", got)
	}
	p := f.payment(res.Payment.ID)
	if p.Status != domain.PaymentSucceeded || p.Provider != domain.ProviderBonus {
		t.Fatalf("payment = %+v", p)
	}
	f.assertLedger()
}

func TestCheckoutBonusOnlyConsumesDiscountWithoutCommission(t *testing.T) {
	f := newFixture(t)
	f.refer(2, 1)
	f.fund(1, 900)
	sc := f.scenario(1000, nil)

	res, err := f.checkout.Checkout(context.Background(), CheckoutRequest{UserID: 1, ScenarioID: sc.ID, UseBonus: true})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if !res.PaidWithBonus || res.BonusUsed != 900 || !res.DiscountApplied {
		t.Fatalf("result = %+v", res)
	}
	eligible, _ := f.referrals.IsFirstPurchaseDiscountEligible(1)
	if eligible {
		t.Fatal("discount still available after first payment")
	}
	if b := f.balance(2); b.Balance != 0 {
		t.Fatalf("referrer earned commission on a bonus-only purchase: %+v", b)
	}
}

func TestCheckoutReferralDiscount(t *testing.T) {
	f := newFixture(t)
	f.refer(2, 1)
	sc := f.scenario(0, nil)

	q, err := f.checkout.Quote(CheckoutRequest{UserID: 1, ScenarioID: sc.ID, ListPrice: 1000})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if !q.DiscountApplied || q.Price != 900 || q.CashAmount != 900 {
		t.Fatalf("quote = %+v", q)
	}

	res, err := f.checkout.Checkout(context.Background(), CheckoutRequest{UserID: 1, ScenarioID: sc.ID, ListPrice: 1000})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if p := f.payment(res.Payment.ID); p.Amount != 900 || !p.DiscountApplied {
		t.Fatalf("payment = %+v", p)
	}
	// The discount is consumed by settlement, not by checkout.
	if eligible, _ := f.referrals.IsFirstPurchaseDiscountEligible(1); !eligible {
		t.Fatal("checkout consumed the discount")
	}
}

func TestCheckoutPartialBonus(t *testing.T) {
	f := newFixture(t)
	f.fund(1, 300)
	sc := f.scenario(0, nil)

	res, err := f.checkout.Checkout(context.Background(), CheckoutRequest{UserID: 1, ScenarioID: sc.ID, ListPrice: 1000, UseBonus: true})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	p := f.payment(res.Payment.ID)
	if p.Amount != 1000 || p.BonusUsed != 300 || p.CashAmount() != 700 {
		t.Fatalf("payment = %+v", p)
	}
	remote, _ := f.gateway.GetPayment(context.Background(), *p.GatewayPaymentID)
	if remote.AmountMinor != 700 {
		t.Fatalf("gateway charged %d, want 700", remote.AmountMinor)
	}
	if b := f.balance(1); b.Balance != 0 || b.TotalSpent != 300 {
		t.Fatalf("bonus not reserved: %+v", b)
	}
	f.assertLedger()
}

func TestCheckoutGatewayFailureRestoresBonus(t *testing.T) {
	f := newFixture(t)
	f.fund(1, 300)
	sc := f.scenario(0, nil)
	f.gateway.FailNext(&payment.APIError{StatusCode: 400, Code: "invalid_request", Description: "shop is blocked"})

	_, err := f.checkout.Checkout(context.Background(), CheckoutRequest{UserID: 1, ScenarioID: sc.ID, ListPrice: 1000, UseBonus: true})
	var gwErr *domain.GatewayError
	if !errors.As(err, &gwErr) || !errors.Is(err, domain.ErrGateway) {
		t.Fatalf("want GatewayError, got %v", err)
	}
	if gwErr.Description != "shop is blocked" {
		t.Fatalf("description = %q", gwErr.Description)
	}
	if b := f.balance(1); b.Balance != 300 || b.TotalSpent != 0 {
		t.Fatalf("bonus not restored: %+v", b)
	}
	txs := f.transactions(1)
	if len(txs) != 3 || txs[0].Type != domain.BonusTxRefund || txs[0].Source != domain.BonusSourceCheckoutFailed {
		t.Fatalf("transactions = %+v", txs)
	}
	p := f.payment(*txs[0].PaymentID)
	if p.Status != domain.PaymentCanceled {
		t.Fatalf("payment = %+v", p)
	}
	f.assertLedger()
}

func TestCheckoutRejections(t *testing.T) {
	f := newFixture(t)
	free := f.scenario(0, nil)
	if err := f.db.Model(free).Updates(map[string]interface{}{"is_free": true, "is_paid": true}).Error; err != nil {
		t.Fatal(err)
	}
	paid := f.scenario(0, nil)
	if err := f.db.Model(paid).Update("is_paid", true).Error; err != nil {
		t.Fatal(err)
	}
	owner := uint(5)
	owned := f.scenario(0, &owner)
	priced := f.scenario(1500, nil)
	open := f.scenario(0, nil)

	tests := []struct {
		name string
		req  CheckoutRequest
		want error
	}{
		{"no principal", CheckoutRequest{ScenarioID: priced.ID}, domain.ErrUnauthorized},
		{"unknown scenario", CheckoutRequest{UserID: 1, ScenarioID: 999, ListPrice: 1000}, domain.ErrScenarioNotFound},
		{"free scenario", CheckoutRequest{UserID: 1, ScenarioID: free.ID, ListPrice: 1000}, domain.ErrValidation},
		{"already paid", CheckoutRequest{UserID: 1, ScenarioID: paid.ID, ListPrice: 1000}, domain.ErrValidation},
		{"someone else's scenario", CheckoutRequest{UserID: 1, ScenarioID: owned.ID, ListPrice: 1000}, domain.ErrForbidden},
		{"price mismatch", CheckoutRequest{UserID: 1, ScenarioID: priced.ID, ListPrice: 1000}, domain.ErrValidation},
		{"below minimum", CheckoutRequest{UserID: 1, ScenarioID: open.ID, ListPrice: 50}, domain.ErrValidation},
		{"zero price", CheckoutRequest{UserID: 5, ScenarioID: owned.ID}, domain.ErrValidation},
		{"above maximum", CheckoutRequest{UserID: 5, ScenarioID: owned.ID, ListPrice: 10_000_01}, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.checkout.Checkout(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("want %v, got %v", tt.want, err)
			}
		})
	}
	if f.gateway.InitiateCalls() != 0 {
		t.Fatal("rejected checkout reached the gateway")
	}
}

func TestQuoteHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	f.fund(1, 500)
	sc := f.scenario(0, nil)

	q, err := f.checkout.Quote(CheckoutRequest{UserID: 1, ScenarioID: sc.ID, ListPrice: 1000, UseBonus: true})
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if q.BonusUsed != 500 || q.CashAmount != 500 || q.Balance != 500 {
		t.Fatalf("quote = %+v", q)
	}
	if b := f.balance(1); b.Balance != 500 {
		t.Fatalf("quote changed the balance: %+v", b)
	}
	if f.gateway.InitiateCalls() != 0 {
		t.Fatal("quote called the gateway")
	}
}

func TestGetPaymentHidesOtherUsers(t *testing.T) {
	f := newFixture(t)
	sc := f.scenario(0, nil)
	res, err := f.checkout.Checkout(context.Background(), CheckoutRequest{UserID: 1, ScenarioID: sc.ID, ListPrice: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.checkout.GetPayment(1, res.Payment.ID); err != nil {
		t.Fatalf("owner: %v", err)
	}
	if _, err := f.checkout.GetPayment(2, res.Payment.ID); !errors.Is(err, domain.ErrPaymentNotFound) {
		t.Fatalf("other user: want ErrPaymentNotFound, got %v", err)
	}
}

func TestCheckoutRepeatReturnsOpenCharge(t *testing.T) {
	f := newFixture(t)
	f.refer(2, 1)
	sc := f.scenario(1000, nil)

	first, err := f.checkout.Checkout(context.Background(), CheckoutRequest{UserID: 1, ScenarioID: sc.ID})
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	second, err := f.checkout.Checkout(context.Background(), CheckoutRequest{UserID: 1, ScenarioID: sc.ID})
	if err != nil {
		t.Fatalf("second checkout: %v", err)
	}
	if !second.Reused || first.Reused {
		t.Fatalf("reused flags: first %v, second %v", first.Reused, second.Reused)
	}
	if second.Payment.ID != first.Payment.ID || second.PaymentURL != first.PaymentURL || !second.DiscountApplied {
		t.Fatalf("second = %+v, first = %+v", second, first)
	}
	if f.gateway.InitiateCalls() != 1 {
		t.Fatalf("gateway charges = %d, want 1", f.gateway.InitiateCalls())
	}
	var n int64
	f.db.Model(&models.Payment{}).Where("scenario_id = ?", sc.ID).Count(&n)
	if n != 1 {
		t.Fatalf("payments for scenario = %d, want 1", n)
	}

	p := f.payment(first.Payment.ID)
	f.gateway.SetStatus(*p.GatewayPaymentID, payment.StatusSucceeded)
	if _, err := f.settlement.Process(context.Background(), gatewayIP, succeeded(p)); err != nil {
		t.Fatalf("settle: %v", err)
	}
	// 25% of the discounted 900, paid once.
	if b := f.balance(2); b.Balance != 225 {
		t.Fatalf("referrer balance = %d, want 225", b.Balance)
	}
	f.assertLedger()
}

func TestCheckoutDiscountHeldByOpenCharge(t *testing.T) {
	f := newFixture(t)
	f.refer(2, 1)
	a := f.scenario(1000, nil)
	b := f.scenario(1000, nil)

	resA, err := f.checkout.Checkout(context.Background(), CheckoutRequest{UserID: 1, ScenarioID: a.ID})
	if err != nil || !resA.DiscountApplied {
		t.Fatalf("checkout A = %+v, %v", resA, err)
	}
	resB, err := f.checkout.Checkout(context.Background(), CheckoutRequest{UserID: 1, ScenarioID: b.ID})
	if err != nil {
		t.Fatalf("checkout B: %v", err)
	}
	if resB.DiscountApplied || resB.Payment.Amount != 1000 {
		t.Fatalf("second charge discounted while the first is open: %+v", resB.Payment)
	}

	// Canceling A releases the discount for the next purchase.
	p := f.payment(resA.Payment.ID)
	f.gateway.SetStatus(*p.GatewayPaymentID, payment.StatusCanceled)
	if _, err := f.settlement.Process(context.Background(), gatewayIP, canceled(p)); err != nil {
		t.Fatalf("cancel A: %v", err)
	}
	q, err := f.checkout.Quote(CheckoutRequest{UserID: 1, ScenarioID: a.ID})
	if err != nil {
		t.Fatal(err)
	}
	if !q.DiscountApplied || q.Price != 900 {
		t.Fatalf("quote after cancel = %+v", q)
	}
}

func TestCheckoutRefusesAnotherUsersOpenCharge(t *testing.T) {
	f := newFixture(t)
	sc := f.scenario(1000, nil)
	if _, err := f.checkout.Checkout(context.Background(), CheckoutRequest{UserID: 1, ScenarioID: sc.ID}); err != nil {
		t.Fatal(err)
	}
	_, err := f.checkout.Checkout(context.Background(), CheckoutRequest{UserID: 2, ScenarioID: sc.ID})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("want ErrValidation, got %v", err)
	}
	if f.gateway.InitiateCalls() != 1 {
		t.Fatal("second user's checkout reached the gateway")
	}
}

func TestCheckoutLostReplyKeepsPaymentPending(t *testing.T) {
	f := newFixture(t)
	f.fund(1, 300)
	sc := f.scenario(1000, nil)
	f.gateway.LoseNextReply(errors.New("context deadline exceeded"))

	_, err := f.checkout.Checkout(context.Background(), CheckoutRequest{UserID: 1, ScenarioID: sc.ID, UseBonus: true})
	if !errors.Is(err, domain.ErrGateway) {
		t.Fatalf("want gateway error, got %v", err)
	}
	p, err := f.payments.GetOpenForScenario(sc.ID)
	if err != nil || p == nil {
		t.Fatalf("open payment: %v %v", p, err)
	}
	if p.Status != domain.PaymentPending || p.GatewayPaymentID != nil {
		t.Fatalf("payment = %+v", p)
	}
	if b := f.balance(1); b.Balance != 0 || b.TotalSpent != 300 {
		t.Fatalf("bonus released on an unknown outcome: %+v", b)
	}

	res, err := f.checkout.Checkout(context.Background(), CheckoutRequest{UserID: 1, ScenarioID: sc.ID, UseBonus: true})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !res.Reused || res.Payment.ID != p.ID || res.BonusUsed != 300 {
		t.Fatalf("retry = %+v", res)
	}
	// The retry found the charge created by the lost call rather than a new one.
	if got := f.payment(p.ID); got.GatewayPaymentID == nil || *got.GatewayPaymentID != "stub_1" {
		t.Fatalf("gateway id = %v, want stub_1", got.GatewayPaymentID)
	}
	if _, err := f.gateway.GetPayment(context.Background(), "stub_2"); err == nil {
		t.Fatal("retry created a second gateway charge")
	}
	f.assertLedger()
}
