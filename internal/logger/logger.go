// Package logger builds the zap loggers used across the host.
package logger

import (
	"fmt"
	"strings"

	"github.com/goletan/servicehost/shared/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger from configuration. Output is stdout, stderr or a
// file path; format is text (console encoder) or json.
func New(cfg types.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.Sampling = nil
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch strings.ToLower(cfg.Format) {
	case "json":
		zcfg.Encoding = "json"
	case "", "text":
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	output := cfg.Output
	if output == "" {
		output = "stdout"
	}
	zcfg.OutputPaths = []string{output}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	log, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return log, nil
}
