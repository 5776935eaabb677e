package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PAYMENT_PROVIDER", "")
	t.Setenv("REFERRAL_DISCOUNT_PERCENT", "")
	cfg := Load()
	if cfg.Gateway.Provider != "yookassa" {
		t.Errorf("provider = %q", cfg.Gateway.Provider)
	}
	if cfg.Pricing.ReferralDiscountPercent != 15 || cfg.Pricing.CommissionPercent != 25 {
		t.Errorf("pricing = %+v", cfg.Pricing)
	}
	if !cfg.Payment.RefundBonusOnCancel {
		t.Error("refund on cancel should default to true")
	}
	if cfg.Gateway.Timeout != 15*time.Second {
		t.Errorf("gateway timeout = %v", cfg.Gateway.Timeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("RECONCILE_INTERVAL", "30s")
	t.Setenv("REFUND_BONUS_ON_CANCEL", "false")
	t.Setenv("TRUSTED_PROXIES", " 10.0.0.1 , 10.0.0.2,")
	t.Setenv("YOOKASSA_ALLOWED_IPS", "127.0.0.1")
	cfg := Load()
	if cfg.Database.Driver != "mysql" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
	if cfg.Reconcile.Interval != 30*time.Second {
		t.Errorf("interval = %v", cfg.Reconcile.Interval)
	}
	if cfg.Payment.RefundBonusOnCancel {
		t.Error("refund on cancel override ignored")
	}
	if len(cfg.Server.TrustedProxies) != 2 || cfg.Server.TrustedProxies[1] != "10.0.0.2" {
		t.Errorf("trusted proxies = %v", cfg.Server.TrustedProxies)
	}
	if len(cfg.Gateway.AllowedRanges) != 1 {
		t.Errorf("allowed ranges = %v", cfg.Gateway.AllowedRanges)
	}
}
