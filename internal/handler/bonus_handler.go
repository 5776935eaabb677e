package handler

import (
	"net/http"
	"strconv"

	"talkinghead/internal/middleware"
	"talkinghead/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type BonusHandler struct {
	ledger *service.BonusLedger
	log    *zap.Logger
}

func NewBonusHandler(ledger *service.BonusLedger, log *zap.Logger) *BonusHandler {
	return &BonusHandler{ledger: ledger, log: log}
}

// GetBalance returns the caller's bonus account.
// GET /me/bonus
func (h *BonusHandler) GetBalance(c *gin.Context) {
	b, err := h.ledger.GetBalance(middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"balance":      amount(b.Balance),
		"total_earned": amount(b.TotalEarned),
		"total_spent":  amount(b.TotalSpent),
	})
}

// GetTransactions pages through the caller's ledger, newest first.
// GET /me/bonus/transactions?limit=&offset=
func (h *BonusHandler) GetTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	txs, total, err := h.ledger.Transactions(middleware.GetUserID(c), limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	items := make([]gin.H, 0, len(txs))
	for _, t := range txs {
		item := gin.H{
			"id":          t.ID,
			"amount":      amount(t.Amount),
			"type":        t.Type,
			"source":      t.Source,
			"description": t.Description,
			"created_at":  t.CreatedAt,
		}
		if t.PaymentID != nil {
			item["payment_id"] = *t.PaymentID
		}
		items = append(items, item)
	}
	c.JSON(http.StatusOK, gin.H{"transactions": items, "total": total})
}
