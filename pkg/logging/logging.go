package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process-wide logger. The "local" environment gets the
// human-readable development encoder; everything else logs structured JSON.
func New(env string) (*zap.Logger, error) {
	var cfg zap.Config
	if env == "local" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// SecurityEvent logs a structured security event in a greppable format.
// Used by the chat engine for input sanitization hits, unsafe model output,
// and error paths that may carry hostile input.
func SecurityEvent(logger *zap.Logger, eventType string, chatID int64, input, details string) {
	logger.Warn("SECURITY_EVENT",
		zap.String("type", eventType),
		zap.Int64("chat_id", chatID),
		zap.String("input", TruncateString(input, 100)),
		zap.String("details", details),
	)
}
