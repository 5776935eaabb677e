package handler

import (
	"errors"
	"net/http"

	"talkinghead/internal/domain"
	"talkinghead/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PaymentWebhookHandler struct {
	settlement *service.SettlementService
	log        *zap.Logger
}

func NewPaymentWebhookHandler(settlement *service.SettlementService, log *zap.Logger) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{settlement: settlement, log: log}
}

// yookassaNotification is the subset of the gateway's notification we read.
// Status and amount in the object are ignored; settlement re-reads them.
type yookassaNotification struct {
	Type   string `json:"type"`
	Event  string `json:"event"`
	Object struct {
		ID string `json:"id"`
	} `json:"object"`
}

// HandleYooKassa accepts a gateway notification. Anything that is settled,
// already settled, or not ours is acknowledged with 200 so the gateway stops
// retrying; verification failures and gateway outages are not.
// POST /webhooks/yookassa
func (h *PaymentWebhookHandler) HandleYooKassa(c *gin.Context) {
	if err := h.settlement.CheckOrigin(c.ClientIP()); err != nil {
		respondError(c, h.log, err)
		return
	}
	var n yookassaNotification
	if err := c.ShouldBindJSON(&n); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	res, err := h.settlement.Process(c.Request.Context(), c.ClientIP(), service.Notification{
		Event:            n.Event,
		GatewayPaymentID: n.Object.ID,
	})
	if errors.Is(err, domain.ErrPaymentNotFound) {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": res.Outcome})
}
