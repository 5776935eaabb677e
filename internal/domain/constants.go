package domain

// Payment statuses. pending → succeeded | canceled; both are terminal.
const (
	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
	PaymentCanceled  = "canceled"
)

// paymentTransitions lists every allowed status change.
var paymentTransitions = map[string][]string{
	PaymentPending: {PaymentSucceeded, PaymentCanceled},
}

// CanTransitionPayment reports whether from → to is in the transition table.
func CanTransitionPayment(from, to string) bool {
	for _, s := range paymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalPayment reports whether no further transition is possible.
func IsTerminalPayment(status string) bool {
	return status == PaymentSucceeded || status == PaymentCanceled
}

const (
	ProviderYooKassa = "yookassa"
	ProviderStub     = "stub"
	ProviderBonus    = "bonus" // settled entirely from the bonus balance
)

// Referral statuses. registered → paid exactly once.
const (
	ReferralRegistered = "registered"
	ReferralPaid       = "paid"
)

// Bonus transaction types.
const (
	BonusTxEarned = "earned"
	BonusTxSpend  = "spend"
	BonusTxRefund = "refund"
)

// Bonus transaction sources.
const (
	BonusSourceReferralCommission = "referral_commission"
	BonusSourcePayment            = "payment"
	BonusSourcePaymentCanceled    = "payment_canceled"
	BonusSourceCheckoutFailed     = "checkout_failed"
)

// Gateway notification events.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentCanceled  = "payment.canceled"
)

const CurrencyRUB = "RUB"
