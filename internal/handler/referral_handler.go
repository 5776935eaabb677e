package handler

import (
	"net/http"

	"talkinghead/internal/middleware"
	"talkinghead/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ReferralHandler struct {
	referrals *service.ReferralService
	log       *zap.Logger
}

func NewReferralHandler(referrals *service.ReferralService, log *zap.Logger) *ReferralHandler {
	return &ReferralHandler{referrals: referrals, log: log}
}

type referralCodeBody struct {
	Code string `json:"code" binding:"required"`
}

// RecordClick counts a landing page visit. Unknown codes are accepted
// silently so the endpoint does not reveal which codes exist.
// POST /referrals/click
func (h *ReferralHandler) RecordClick(c *gin.Context) {
	var body referralCodeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	if err := h.referrals.RecordClick(body.Code); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Link attributes the caller to the code's owner.
// POST /referrals/link
func (h *ReferralHandler) Link(c *gin.Context) {
	var body referralCodeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	if err := h.referrals.LinkReferral(body.Code, middleware.GetUserID(c)); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetMyReferralCode returns the caller's code, creating one on first use.
// GET /me/referral-code
func (h *ReferralHandler) GetMyReferralCode(c *gin.Context) {
	rc, err := h.referrals.GetOrCreateCode(middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":       rc.Code,
		"clicks":     rc.Clicks,
		"created_at": rc.CreatedAt,
	})
}

// GetMyReferrals returns the caller's referral funnel and bonus totals.
// GET /me/referrals
func (h *ReferralHandler) GetMyReferrals(c *gin.Context) {
	st, err := h.referrals.Stats(middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":          st.Code,
		"clicks":        st.Clicks,
		"registered":    st.Registered,
		"paid":          st.Paid,
		"bonus_balance": amount(st.Balance),
		"total_earned":  amount(st.TotalEarned),
	})
}
