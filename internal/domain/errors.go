package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("validation error")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInsufficientBalance  = errors.New("insufficient bonus balance")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrScenarioNotFound     = errors.New("scenario not found")
	ErrVerificationMismatch = errors.New("payment verification mismatch")
	ErrGateway              = errors.New("payment gateway error")
	ErrInvalidTransition    = errors.New("invalid status transition")
)

// Validationf returns an ErrValidation carrying a caller-facing message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// GatewayError wraps a failed outbound gateway call.
type GatewayError struct {
	StatusCode  int
	Description string
	Err         error
}

func (e *GatewayError) Error() string {
	if e.Description != "" {
		return "payment gateway: " + e.Description
	}
	if e.Err != nil {
		return "payment gateway: " + e.Err.Error()
	}
	return ErrGateway.Error()
}

func (e *GatewayError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrGateway, e.Err}
	}
	return []error{ErrGateway}
}
