// Package logging builds the zap logger every process uses.
package logging

import (
	"strings"

	"go.uber.org/zap"
)

// New returns a JSON production logger for "prod"/"production" and a
// console development logger otherwise.
func New(mode string) (*zap.Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	return cfg.Build()
}

// Must is New for process entry points.
func Must(mode string) *zap.Logger {
	log, err := New(mode)
	if err != nil {
		panic(err)
	}
	return log
}

// Bootstrap is the logger used before configuration is known.
func Bootstrap() *zap.Logger {
	log, err := zap.NewProduction()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
