package router

import (
	"fmt"

	"talkinghead/config"
	"talkinghead/internal/domain"
	"talkinghead/internal/repository"
	"talkinghead/internal/service"
	"talkinghead/internal/ws"
	"talkinghead/pkg/ipallow"
	"talkinghead/pkg/payment"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services is the wired service graph shared by the HTTP server and the CLI.
type Services struct {
	Hub        *ws.Hub
	Payments   *repository.PaymentRepository
	Ledger     *service.BonusLedger
	Referrals  *service.ReferralService
	Scenarios  *service.ScenarioService
	Checkout   *service.CheckoutService
	Settlement *service.SettlementService
	Reconciler *service.Reconciler
}

// NewGateway returns the configured payment provider.
func NewGateway(cfg *config.GatewayConfig, log *zap.Logger) (payment.Provider, error) {
	switch cfg.Provider {
	case "", domain.ProviderYooKassa:
		if cfg.ShopID == "" || cfg.SecretKey == "" {
			return nil, fmt.Errorf("yookassa: YOOKASSA_SHOP_ID and YOOKASSA_SECRET_KEY are required")
		}
		return payment.NewYooKassaProvider(cfg.BaseURL, cfg.ShopID, cfg.SecretKey, cfg.Timeout, log), nil
	case domain.ProviderStub:
		return payment.NewStubProvider(""), nil
	default:
		return nil, fmt.Errorf("unsupported payment provider %q", cfg.Provider)
	}
}

// NewServices builds repositories and services on db.
func NewServices(cfg *config.Config, db *gorm.DB, gateway payment.Provider, log *zap.Logger) (*Services, error) {
	ranges := cfg.Gateway.AllowedRanges
	if len(ranges) == 0 {
		ranges = ipallow.YooKassaRanges
	}
	allow, err := ipallow.New(ranges)
	if err != nil {
		return nil, fmt.Errorf("gateway allow-list: %w", err)
	}

	paymentRepo := repository.NewPaymentRepository(db)
	scenarioRepo := repository.NewScenarioRepository(db)
	referralRepo := repository.NewReferralRepository(db)
	bonusRepo := repository.NewBonusRepository(db)

	hub := ws.NewHub()
	ledger := service.NewBonusLedger(bonusRepo, log)
	referrals := service.NewReferralService(referralRepo, ledger, log)
	scenarios := service.NewScenarioService(scenarioRepo, cfg.Pricing.FreeScenariosPerUser, cfg.Pricing.MaxPrice, log)
	provider := cfg.Gateway.Provider
	if provider == "" {
		provider = domain.ProviderYooKassa
	}
	checkout := service.NewCheckoutService(db, scenarioRepo, paymentRepo, ledger, referrals, gateway, service.CheckoutConfig{
		Provider:        provider,
		Currency:        cfg.Gateway.Currency,
		ReturnURL:       cfg.Gateway.ReturnURL,
		DiscountPercent: cfg.Pricing.ReferralDiscountPercent,
		MaxPrice:        cfg.Pricing.MaxPrice,
	}, log)
	settlement := service.NewSettlementService(db, paymentRepo, scenarioRepo, ledger, referrals, gateway, allow, hub,
		service.SettlementConfig{
			CommissionPercent:   cfg.Pricing.CommissionPercent,
			RefundBonusOnCancel: cfg.Payment.RefundBonusOnCancel,
		}, log)
	reconciler := service.NewReconciler(paymentRepo, checkout, settlement, cfg.Reconcile, log)

	return &Services{
		Hub:        hub,
		Payments:   paymentRepo,
		Ledger:     ledger,
		Referrals:  referrals,
		Scenarios:  scenarios,
		Checkout:   checkout,
		Settlement: settlement,
		Reconciler: reconciler,
	}, nil
}
