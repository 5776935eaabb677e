package router

import (
	"time"

	"talkinghead/config"
	"talkinghead/internal/handler"
	"talkinghead/internal/middleware"
	"talkinghead/internal/ws"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Setup builds the HTTP engine. The returned limiter must be closed on shutdown.
func Setup(cfg *config.Config, svc *Services, log *zap.Logger) (*gin.Engine, *middleware.InMemoryRateLimiter, error) {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// The webhook origin check reads ClientIP, so only configured proxies may set X-Forwarded-For.
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, nil, err
	}
	clickLimiter := middleware.NewInMemoryRateLimiter(30, 60*time.Second)

	checkoutHandler := handler.NewCheckoutHandler(svc.Checkout, log)
	webhookHandler := handler.NewPaymentWebhookHandler(svc.Settlement, log)
	referralHandler := handler.NewReferralHandler(svc.Referrals, log)
	bonusHandler := handler.NewBonusHandler(svc.Ledger, log)
	scenarioHandler := handler.NewScenarioHandler(svc.Scenarios, log)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/ws/payments", ws.ServePayments(&cfg.JWT, svc.Hub, log))

	api := r.Group("/api/v1")
	api.POST("/webhooks/yookassa", webhookHandler.HandleYooKassa)
	api.POST("/referrals/click", middleware.RateLimit(clickLimiter), referralHandler.RecordClick)

	internal := api.Group("/internal", middleware.ServiceTokenRequired(cfg.Internal.ServiceToken))
	internal.POST("/scenarios", scenarioHandler.Register)
	internal.GET("/scenarios/:id", scenarioHandler.Get)

	authed := api.Group("", middleware.AuthRequired(&cfg.JWT))
	authed.POST("/referrals/link", referralHandler.Link)

	payments := authed.Group("/payments")
	payments.POST("/checkout", checkoutHandler.Checkout)
	payments.POST("/quote", checkoutHandler.Quote)
	payments.GET("/:id", checkoutHandler.GetPayment)

	me := authed.Group("/me")
	me.GET("/referral-code", referralHandler.GetMyReferralCode)
	me.GET("/referrals", referralHandler.GetMyReferrals)
	me.GET("/bonus", bonusHandler.GetBalance)
	me.GET("/bonus/transactions", bonusHandler.GetTransactions)

	return r, clickLimiter, nil
}
