package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field keys shared across services.
const (
	FieldUserID           = "user_id"
	FieldPaymentID        = "payment_id"
	FieldGatewayPaymentID = "gateway_payment_id"
	FieldScenarioID       = "scenario_id"
	FieldRemoteIP         = "remote_ip"
	FieldEvent            = "event"
	FieldAlert            = "alert"
)

// AlertPaymentVerification tags log lines that should page someone.
const AlertPaymentVerification = "payment_verification"

// New returns a JSON logger in production and a console logger otherwise.
func New(env string) (*zap.Logger, error) {
	if env == "production" {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg.Build()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg.Build()
}

// OrNop guards optional logger arguments.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func Alert(value string) zap.Field { return zap.String(FieldAlert, value) }
