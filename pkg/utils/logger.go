package utils

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName is attached to every log line of the daemon.
const ServiceName = "logfilterd"

// NewSugaredLogger builds the daemon logger. Verbose selects the development
// config (console encoding, debug level); otherwise JSON at info level.
// Timestamps are ISO8601 in both modes.
func NewSugaredLogger(verbose bool) (*zap.SugaredLogger, error) {
	cfg := loggerConfig(verbose)
	l, err := cfg.Build(zap.Fields(zap.String("service", ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return l.Sugar(), nil
}

func loggerConfig(verbose bool) zap.Config {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	return cfg
}
