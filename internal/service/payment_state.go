package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"talkinghead/internal/domain"
	"talkinghead/internal/models"
	"talkinghead/internal/repository"
	"talkinghead/pkg/payment"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventPublisher pushes payment events to a user's live connections.
type EventPublisher interface {
	PublishToUser(userID uint, payload interface{})
}

// PaymentEvent is what subscribers receive when a payment reaches a terminal state.
type PaymentEvent struct {
	Type       string `json:"type"`
	PaymentID  uint   `json:"payment_id"`
	ScenarioID uint   `json:"scenario_id"`
	Status     string `json:"status"`
}

func publish(p EventPublisher, pay *models.Payment, eventType string) {
	if p == nil {
		return
	}
	p.PublishToUser(pay.UserID, PaymentEvent{
		Type:       eventType,
		PaymentID:  pay.ID,
		ScenarioID: pay.ScenarioID,
		Status:     pay.Status,
	})
}

// cancelPending moves p from pending to canceled inside tx and, when refund
// is set, returns the bonus p reserved. It reports false when p had already
// left pending.
func cancelPending(tx *gorm.DB, payments *repository.PaymentRepository, ledger *BonusLedger, p *models.Payment, source string, refund bool, at time.Time) (bool, error) {
	ok, err := payments.WithTx(tx).Transition(p.ID, domain.PaymentPending, domain.PaymentCanceled, at)
	if err != nil || !ok {
		return false, err
	}
	if refund && p.BonusUsed > 0 {
		desc := fmt.Sprintf("payment #%d canceled", p.ID)
		if _, err := ledger.WithTx(tx).Refund(p.UserID, p.BonusUsed, source, desc, &p.ID); err != nil {
			return false, err
		}
	}
	p.Status = domain.PaymentCanceled
	p.CanceledAt = &at
	return true, nil
}

func gatewayError(err error) error {
	var apiErr *payment.APIError
	if errors.As(err, &apiErr) {
		return &domain.GatewayError{StatusCode: apiErr.StatusCode, Description: apiErr.Description, Err: err}
	}
	return &domain.GatewayError{Err: err}
}

func paymentMetadata(p *models.Payment) map[string]string {
	return map[string]string{
		payment.MetaPaymentID:  strconv.FormatUint(uint64(p.ID), 10),
		payment.MetaUserID:     strconv.FormatUint(uint64(p.UserID), 10),
		payment.MetaScenarioID: strconv.FormatUint(uint64(p.ScenarioID), 10),
	}
}

func metadataJSON(m map[string]string) datatypes.JSON {
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
