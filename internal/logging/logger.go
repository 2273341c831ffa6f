// Package logging builds the zap logger shared by the commands.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the log level and encoder.
type Config struct {
	Level  string
	Pretty bool
}

// New returns a JSON logger writing to stderr, or a human readable console
// logger when Pretty is set. An unparsable level falls back to info.
func New(c Config) (*zap.Logger, error) {
	var cfg zap.Config
	if c.Pretty {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(c.Level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build(zap.Fields(zap.String("service", "monerohealth")))
}

// ParseLevel parses a level name such as "debug" or "WARN".
func ParseLevel(s string) zapcore.Level {
	level := zapcore.InfoLevel
	if err := level.Set(s); err != nil {
		return zapcore.InfoLevel
	}
	return level
}
