// Package observability provides structured logging, metrics, and tracing
// collaborators. Hivemind treats all three as narrow interfaces — the same
// shape the teacher exposes from its own observability package — so the
// core components never import a concrete logging or metrics library
// directly.
package observability

import (
	"go.uber.org/zap"
)

// Logger provides structured logging hooks.
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	With(fields map[string]any) Logger
}

// ZapLogger backs Logger with go.uber.org/zap's sugared logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger wraps an existing *zap.Logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{sugar: l.Sugar()}
}

// NewProductionLogger builds a JSON-encoded, info-level zap logger suitable
// for the default `hivemind` binary.
func NewProductionLogger() (*ZapLogger, error) {
	l, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(l), nil
}

// NewDevelopmentLogger builds a human-readable, debug-level zap logger.
func NewDevelopmentLogger() (*ZapLogger, error) {
	l, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return NewZapLogger(l), nil
}

// Info logs an info message with structured fields.
func (z *ZapLogger) Info(msg string, fields map[string]any) {
	if z == nil || z.sugar == nil {
		return
	}
	z.sugar.Infow(msg, flatten(fields)...)
}

// Error logs an error message with structured fields.
func (z *ZapLogger) Error(msg string, fields map[string]any) {
	if z == nil || z.sugar == nil {
		return
	}
	z.sugar.Errorw(msg, flatten(fields)...)
}

// With returns a Logger that includes fields on every subsequent call.
func (z *ZapLogger) With(fields map[string]any) Logger {
	if z == nil || z.sugar == nil {
		return z
	}
	return &ZapLogger{sugar: z.sugar.With(flatten(fields)...)}
}

func flatten(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}
