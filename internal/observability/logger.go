// Package observability wires structured logging for the CLI.
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the process-wide structured logger used by internal/cmd and
// pkg/convert. It is initialised to a sane development default so tests and
// `go run` both produce readable output before Init is called explicitly.
var CLILogger *zap.Logger = zap.NewNop()

func init() {
	l, err := zap.NewDevelopment()
	if err != nil {
		CLILogger = zap.NewNop()
		return
	}
	CLILogger = l
}

// Options controls how Init builds the process logger.
type Options struct {
	// Level is one of debug|info|warn|error.
	Level string
	// Format is console or json.
	Format string
}

// Init replaces CLILogger with one built from opts. Call once, early in
// main/root command initialisation, before any subcommand logs.
func Init(opts Options) error {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(opts.Level)))); err != nil && strings.TrimSpace(opts.Level) != "" {
		return fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "json":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.TimeKey = "" // timestamps add noise to interactive step output
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	CLILogger = l
	return nil
}

// Sync flushes any buffered log entries. Callers should defer this from main.
func Sync() {
	_ = CLILogger.Sync()
}
