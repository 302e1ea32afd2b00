// Package logging builds the application's structured logger.
package logging

import (
	"go.uber.org/zap"

	"docdash/internal/config"
)

// New builds a zap logger from log settings. Development environments get
// zap's development defaults (stack traces on warn, caller info).
func New(cfg config.LogConfig, environment string) (*zap.Logger, error) {
	var zapConfig zap.Config
	if environment == "development" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	zapConfig.Level = level

	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	} else {
		zapConfig.Encoding = "json"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", "docdash")), nil
}

// Must is New that falls back to a production logger when the configured one
// cannot be built.
func Must(cfg config.LogConfig, environment string) *zap.Logger {
	logger, err := New(cfg, environment)
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Warn("logging.Must: falling back to production logger", zap.Error(err))
		return fallback
	}
	return logger
}
