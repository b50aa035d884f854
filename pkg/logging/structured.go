// Package logging provides the structured logger used by the daemon. It
// keeps zap for high-volume JSON output and mirrors to slog so library
// code can stay on the standard contextual API.
package logging

import (
	"context"
	"log/slog"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/snow-ghost/healer/core"
)

// Logger wraps both slog and zap loggers.
type Logger struct {
	slog *slog.Logger
	zap  *zap.Logger
}

// Config holds logging configuration.
type Config struct {
	Level     string
	Format    string // "json" or "console"
	Output    string // "stdout" or "stderr"
	AddCaller bool
	AddStack  bool
}

// NewLogger creates a new structured logger and installs the slog half
// as the process default.
func NewLogger(config Config) (*Logger, error) {
	slogHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseSlogLevel(config.Level),
	})
	slogLogger := slog.New(slogHandler)
	slog.SetDefault(slogLogger)

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = parseZapLevel(config.Level)
	if config.Format != "" {
		zapConfig.Encoding = config.Format
	}
	if config.Output != "" {
		zapConfig.OutputPaths = []string{config.Output}
		zapConfig.ErrorOutputPaths = []string{config.Output}
	}
	zapConfig.DisableCaller = !config.AddCaller
	zapConfig.DisableStacktrace = !config.AddStack

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{slog: slogLogger, zap: zapLogger}, nil
}

func parseSlogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseZapLevel(level string) zap.AtomicLevel {
	switch level {
	case "debug":
		return zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
}

// WithFields adds fields to logger context.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	slogAttrs := make([]any, 0, len(fields)*2)
	zapFields := make([]zap.Field, 0, len(fields))
	for key, value := range fields {
		slogAttrs = append(slogAttrs, key, value)
		zapFields = append(zapFields, zap.Any(key, value))
	}
	return &Logger{slog: l.slog.With(slogAttrs...), zap: l.zap.With(zapFields...)}
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...any) {
	l.slog.Info(msg, args...)
	l.zap.Info(msg, convertToZapFields(args)...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) {
	l.slog.Warn(msg, args...)
	l.zap.Warn(msg, convertToZapFields(args)...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...any) {
	l.slog.Error(msg, args...)
	l.zap.Error(msg, convertToZapFields(args)...)
}

func convertToZapFields(args []any) []zap.Field {
	if len(args) == 0 {
		return nil
	}
	fields := make([]zap.Field, 0, len(args)/2)
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			fields = append(fields, zap.Any(key, args[i+1]))
		}
	}
	return fields
}

// LogCycle logs one completed healing cycle.
func (l *Logger) LogCycle(ctx context.Context, report core.CycleReport) {
	l.WithFields(map[string]any{
		"detected":    report.Detected,
		"healed":      report.Healed,
		"escalations": len(report.Escalations),
		"learnings":   len(report.Learnings),
		"outcome":     string(report.Outcome),
		"duration_ms": report.Duration.Milliseconds(),
	}).Info("healing cycle completed")
}

// LogAttempt logs one healing attempt.
func (l *Logger) LogAttempt(ctx context.Context, attempt core.HealingAttempt) {
	l.WithFields(map[string]any{
		"error_id":    attempt.ErrorID,
		"strategy":    string(attempt.Strategy),
		"attempt":     attempt.AttemptNumber,
		"outcome":     string(attempt.Outcome),
		"confidence":  attempt.Confidence,
		"duration_ms": attempt.Duration.Milliseconds(),
	}).Info("healing attempt")
}

// LogEscalation logs a hand-off to a human.
func (l *Logger) LogEscalation(ctx context.Context, esc core.Escalation) {
	l.WithFields(map[string]any{
		"error_id": esc.ErrorID,
		"category": string(esc.Category),
		"reason":   esc.Reason,
		"action":   esc.HumanActionNeeded,
	}).Warn("error escalated to human")
}

// LogOracleCall logs one oracle round trip.
func (l *Logger) LogOracleCall(ctx context.Context, status string, duration time.Duration, score float64) {
	l.WithFields(map[string]any{
		"status":      status,
		"duration_ms": float64(duration.Nanoseconds()) / 1e6,
		"score":       score,
	}).Info("oracle call completed")
}

// LogCircuitBreaker logs a breaker state change.
func (l *Logger) LogCircuitBreaker(ctx context.Context, name, from, to string) {
	l.WithFields(map[string]any{
		"breaker": name,
		"from":    from,
		"to":      to,
	}).Warn("circuit breaker state changed")
}

// Sync flushes buffered log entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// GetSlog returns the slog logger.
func (l *Logger) GetSlog() *slog.Logger {
	return l.slog
}

// GetZap returns the zap logger.
func (l *Logger) GetZap() *zap.Logger {
	return l.zap
}
