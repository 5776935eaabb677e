package handler

import (
	"errors"
	"net/http"
	"strings"

	"talkinghead/internal/domain"
	"talkinghead/pkg/money"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps a domain error to a status code and a client-safe message.
// Unexpected errors are logged and reported as 500 without detail.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	var gw *domain.GatewayError
	switch {
	case errors.Is(err, domain.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
	case errors.Is(err, domain.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInsufficientBalance):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, domain.ErrPaymentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
	case errors.Is(err, domain.ErrScenarioNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "scenario not found"})
	case errors.Is(err, domain.ErrVerificationMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": "payment verification failed"})
	case errors.As(err, &gw):
		msg := "payment provider unavailable"
		if gw.Description != "" {
			msg = gw.Description
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": msg})
	default:
		log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func validationMessage(err error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, domain.ErrValidation.Error()+": "); ok {
		return rest
	}
	return msg
}

// amount renders minor units the way the API exposes money.
func amount(minor int64) string {
	return money.Format(minor)
}
