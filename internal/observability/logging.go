// Package observability provides the structured logger and Prometheus
// metrics the engine and its surrounding process use.
package observability

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Logger wraps slog with negotiation-scoped context correlation and
// credential redaction.
type Logger struct {
	logger  *slog.Logger
	redacts []*regexp.Regexp
}

// LogConfig configures a Logger.
type LogConfig struct {
	Level          string
	Format         string // "json" or "text"
	Output         io.Writer
	AddSource      bool
	RedactPatterns []string
}

// ContextKey is the type for context keys the logger correlates on.
type ContextKey string

const (
	NegotiationIDKey ContextKey = "negotiation_id"
	ParticipantIDKey ContextKey = "participant_id"
	RoundNumberKey   ContextKey = "round_number"
)

// DefaultRedactPatterns covers the secret shapes likely to leak through
// adapter configuration or raw provider error bodies.
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["\']?([a-zA-Z0-9_\-]{16,})["\']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-\.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["\']?([^\s"']{8,})["\']?`,
	`sk-ant-[a-zA-Z0-9_-]{95,}`,
	`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,
}

// NewLogger builds a Logger. Defaults to JSON output on stdout at info level.
func NewLogger(cfg LogConfig) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Level == "" {
		cfg.Level = "info"
	}
	if cfg.Format == "" {
		cfg.Format = "json"
	}

	opts := &slog.HandlerOptions{Level: LogLevelFromString(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	patterns := append(append([]string{}, DefaultRedactPatterns...), cfg.RedactPatterns...)
	redacts := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if re, err := regexp.Compile(p); err == nil {
			redacts = append(redacts, re)
		}
	}

	return &Logger{logger: slog.New(handler), redacts: redacts}
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) { l.log(ctx, slog.LevelDebug, msg, args...) }
func (l *Logger) Info(ctx context.Context, msg string, args ...any)  { l.log(ctx, slog.LevelInfo, msg, args...) }
func (l *Logger) Warn(ctx context.Context, msg string, args ...any)  { l.log(ctx, slog.LevelWarn, msg, args...) }
func (l *Logger) Error(ctx context.Context, msg string, args ...any) { l.log(ctx, slog.LevelError, msg, args...) }

func (l *Logger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	msg = l.redactString(msg)

	redacted := make([]any, len(args))
	for i, a := range args {
		redacted[i] = l.redactValue(a)
	}

	attrs := make([]any, 0, len(redacted)+6)
	if v, ok := ctx.Value(NegotiationIDKey).(string); ok && v != "" {
		attrs = append(attrs, "negotiation_id", v)
	}
	if v, ok := ctx.Value(ParticipantIDKey).(string); ok && v != "" {
		attrs = append(attrs, "participant_id", v)
	}
	if v, ok := ctx.Value(RoundNumberKey).(int); ok {
		attrs = append(attrs, "round_number", v)
	}
	attrs = append(attrs, redacted...)

	l.logger.Log(ctx, level, msg, attrs...)
}

func (l *Logger) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return l.redactString(val)
	case error:
		return l.redactString(val.Error())
	default:
		if b, err := json.Marshal(v); err == nil {
			return l.redactString(string(b))
		}
		return v
	}
}

func (l *Logger) redactString(s string) string {
	for _, re := range l.redacts {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}

// WithFields returns a Logger carrying the given fields on every record.
func (l *Logger) WithFields(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...), redacts: l.redacts}
}

// Slog returns the underlying *slog.Logger, for components (like
// negotiation.Engine) that take a plain slog.Logger rather than this
// wrapper.
func (l *Logger) Slog() *slog.Logger { return l.logger }

// WithNegotiation returns a context carrying negotiationID for correlated
// logging.
func WithNegotiation(ctx context.Context, negotiationID string) context.Context {
	return context.WithValue(ctx, NegotiationIDKey, negotiationID)
}

// WithParticipant returns a context carrying participantID for correlated
// logging.
func WithParticipant(ctx context.Context, participantID string) context.Context {
	return context.WithValue(ctx, ParticipantIDKey, participantID)
}

// WithRound returns a context carrying the current center round number.
func WithRound(ctx context.Context, round int) context.Context {
	return context.WithValue(ctx, RoundNumberKey, round)
}

// LogLevelFromString converts a level name to a slog.Level, defaulting to
// info on anything unrecognized.
func LogLevelFromString(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
