package payment

import (
	"context"
	"errors"
	"fmt"
)

// Gateway-side payment statuses.
const (
	StatusPending           = "pending"
	StatusWaitingForCapture = "waiting_for_capture"
	StatusSucceeded         = "succeeded"
	StatusCanceled          = "canceled"
)

// Metadata keys echoed back by the gateway.
const (
	MetaPaymentID  = "payment_id"
	MetaUserID     = "user_id"
	MetaScenarioID = "scenario_id"
)

type PaymentRequest struct {
	AmountMinor    int64
	Currency       string
	Description    string
	ReturnURL      string
	IdempotenceKey string
	CustomerEmail  string // receipt is attached only when set
	Metadata       map[string]string
}

type PaymentResponse struct {
	Reference   string // gateway payment id
	Status      string
	Paid        bool
	AmountMinor int64
	Currency    string
	CheckoutURL string
	Metadata    map[string]string
}

// Provider creates charges and reports their authoritative status.
type Provider interface {
	InitiatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error)
	GetPayment(ctx context.Context, reference string) (*PaymentResponse, error)
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return e.Description
	}
	return fmt.Sprintf("gateway returned HTTP %d", e.StatusCode)
}

// IsRejected reports whether err is a definite refusal: the gateway answered
// 4xx, so no charge exists under the request's idempotence key. Timeouts,
// transport failures and 5xx answers leave the outcome unknown.
func IsRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}
