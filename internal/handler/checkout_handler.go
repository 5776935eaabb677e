package handler

import (
	"net/http"
	"strconv"

	"talkinghead/internal/domain"
	"talkinghead/internal/middleware"
	"talkinghead/internal/models"
	"talkinghead/internal/service"
	"talkinghead/pkg/money"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	checkout *service.CheckoutService
	log      *zap.Logger
}

func NewCheckoutHandler(checkout *service.CheckoutService, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, log: log}
}

type checkoutBody struct {
	ScenarioID  uint             `json:"scenario_id" binding:"required"`
	Amount      *decimal.Decimal `json:"amount"` // major units; omitted: the scenario's list price
	Description string           `json:"description"`
	UseBonus    bool             `json:"use_bonus"`
}

func (h *CheckoutHandler) request(c *gin.Context) (service.CheckoutRequest, bool) {
	var body checkoutBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scenario_id is required"})
		return service.CheckoutRequest{}, false
	}
	req := service.CheckoutRequest{
		UserID:        middleware.GetUserID(c),
		ScenarioID:    body.ScenarioID,
		Description:   body.Description,
		UseBonus:      body.UseBonus,
		CustomerEmail: middleware.GetEmail(c),
	}
	if body.Amount != nil {
		minor, err := money.FromMajor(*body.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount: " + err.Error()})
			return service.CheckoutRequest{}, false
		}
		req.ListPrice = minor
	}
	return req, true
}

// Quote returns the price breakdown without creating anything.
// POST /payments/quote
func (h *CheckoutHandler) Quote(c *gin.Context) {
	req, ok := h.request(c)
	if !ok {
		return
	}
	q, err := h.checkout.Quote(req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"scenario_id":      q.ScenarioID,
		"list_price":       amount(q.ListPrice),
		"price":            amount(q.Price),
		"bonus_used":       amount(q.BonusUsed),
		"cash_amount":      amount(q.CashAmount),
		"discount_applied": q.DiscountApplied,
		"bonus_balance":    amount(q.Balance),
	})
}

// Checkout starts a purchase. Fully bonus-covered purchases settle
// immediately; otherwise the response carries the gateway confirmation URL.
// Repeating a checkout while its charge is open returns that charge with 200.
// POST /payments/checkout
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	req, ok := h.request(c)
	if !ok {
		return
	}
	res, err := h.checkout.Checkout(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	out := paymentJSON(res.Payment)
	out["paid_with_bonus"] = res.PaidWithBonus
	if res.PaymentURL != "" {
		out["payment_url"] = res.PaymentURL
	}
	status := http.StatusCreated
	if res.PaidWithBonus || res.Reused {
		status = http.StatusOK
	}
	c.JSON(status, out)
}

// GetPayment returns one of the caller's payments.
// GET /payments/:id
func (h *CheckoutHandler) GetPayment(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, h.log, domain.Validationf("invalid payment id"))
		return
	}
	p, err := h.checkout.GetPayment(middleware.GetUserID(c), uint(id))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, paymentJSON(p))
}

func paymentJSON(p *models.Payment) gin.H {
	out := gin.H{
		"payment_id":       p.ID,
		"scenario_id":      p.ScenarioID,
		"status":           p.Status,
		"provider":         p.Provider,
		"currency":         p.Currency,
		"amount":           amount(p.Amount),
		"bonus_used":       amount(p.BonusUsed),
		"cash_amount":      amount(p.CashAmount()),
		"discount_applied": p.DiscountApplied,
		"created_at":       p.CreatedAt,
	}
	if p.PaidAt != nil {
		out["paid_at"] = p.PaidAt
	}
	if p.CanceledAt != nil {
		out["canceled_at"] = p.CanceledAt
	}
	return out
}
