package util

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the production JSON logger used across the engine. Every
// component that can fail softly (warn-only stores, skip-on-failure
// decoding) takes a *zap.SugaredLogger at construction rather than reaching
// for a package-level global.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// NewNopLogger returns a logger that discards everything, for tests and for
// callers that don't want engine diagnostics.
func NewNopLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
