package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Gateway   GatewayConfig
	Pricing   PricingConfig
	Payment   PaymentConfig
	Reconcile ReconcileConfig
	Internal  InternalConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	TrustedProxies []string // proxies allowed to set X-Forwarded-For; the webhook origin check depends on it
}

type DatabaseConfig struct {
	Driver          string // postgres, mysql, sqlite
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type JWTConfig struct {
	AccessSecret string
	AccessExpiry time.Duration
	Issuer       string
}

// GatewayConfig holds the payment gateway credentials and endpoints.
type GatewayConfig struct {
	Provider      string // yookassa or stub
	ShopID        string
	SecretKey     string
	BaseURL       string
	ReturnURL     string
	Currency      string
	Timeout       time.Duration
	AllowedRanges []string
}

type PricingConfig struct {
	ReferralDiscountPercent int64
	CommissionPercent       int64
	FreeScenariosPerUser    int64
	MaxPrice                int64 // minor units
}

type PaymentConfig struct {
	RefundBonusOnCancel bool
}

// ReconcileConfig drives the background sweep of stale pending payments.
type ReconcileConfig struct {
	Enabled    bool
	Interval   time.Duration
	PendingAge time.Duration
	AbandonAge time.Duration
	BatchSize  int
}

type InternalConfig struct {
	ServiceToken string
}

// Load reads .env (if present) and the process environment.
func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            getEnv("APP_ENV", "development"),
			ReadTimeout:    getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			TrustedProxies: getList("TRUSTED_PROXIES", nil),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "postgres"),
			DSN:             getEnv("DATABASE_URL", "host=localhost user=postgres dbname=talkinghead sslmode=disable"),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 50),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		},
		JWT: JWTConfig{
			AccessSecret: getEnv("JWT_ACCESS_SECRET", "change-me-in-production"),
			AccessExpiry: getDuration("JWT_ACCESS_EXPIRY", 24*time.Hour),
			Issuer:       getEnv("JWT_ISSUER", "talkinghead"),
		},
		Gateway: GatewayConfig{
			Provider:      getEnv("PAYMENT_PROVIDER", "yookassa"),
			ShopID:        os.Getenv("YOOKASSA_SHOP_ID"),
			SecretKey:     os.Getenv("YOOKASSA_SECRET_KEY"),
			BaseURL:       getEnv("YOOKASSA_BASE_URL", "https://api.yookassa.ru/v3"),
			ReturnURL:     getEnv("PAYMENT_RETURN_URL", "https://talking-head.ru/payment-return"),
			Currency:      getEnv("PAYMENT_CURRENCY", "RUB"),
			Timeout:       getDuration("YOOKASSA_TIMEOUT", 15*time.Second),
			AllowedRanges: getList("YOOKASSA_ALLOWED_IPS", nil),
		},
		Pricing: PricingConfig{
			ReferralDiscountPercent: int64(getInt("REFERRAL_DISCOUNT_PERCENT", 15)),
			CommissionPercent:       int64(getInt("REFERRAL_COMMISSION_PERCENT", 25)),
			FreeScenariosPerUser:    int64(getInt("FREE_SCENARIOS_PER_USER", 1)),
			MaxPrice:                int64(getInt("MAX_SCENARIO_PRICE", 10_000_00)),
		},
		Payment: PaymentConfig{
			RefundBonusOnCancel: getBool("REFUND_BONUS_ON_CANCEL", true),
		},
		Reconcile: ReconcileConfig{
			Enabled:    getBool("RECONCILE_ENABLED", true),
			Interval:   getDuration("RECONCILE_INTERVAL", 5*time.Minute),
			PendingAge: getDuration("RECONCILE_PENDING_AGE", 15*time.Minute),
			AbandonAge: getDuration("RECONCILE_ABANDON_AGE", time.Hour),
			BatchSize:  getInt("RECONCILE_BATCH_SIZE", 100),
		},
		Internal: InternalConfig{
			ServiceToken: os.Getenv("INTERNAL_SERVICE_TOKEN"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}

func getList(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
