package log

import (
	"context"
	"log/slog"
	"net/http"
)

// ContextKey type for context keys
type ContextKey string

const (
	LoggerContextKey ContextKey = "logger"
	// RequestIDContextKey is set by the trace middleware.
	RequestIDContextKey ContextKey = "request_id"
)

// Middleware stores a request-scoped logger in the request context.
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = context.WithValue(ctx, LoggerContextKey, logger.WithContext(ctx))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger logs the domain events that several packages emit.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

func (sl *StructuredLogger) LogPeriodSaved(ctx context.Context, user, profile string, year, month int, key string) {
	fields := NewFields().
		WithPeriod(user, profile, year, month).
		WithOperation(OpSave)
	fields[FieldKey] = key
	sl.logger.InfoContext(ctx, "Period saved", fields.ToSlice()...)
}

func (sl *StructuredLogger) LogReportBuilt(ctx context.Context, user, profile string, records, years int, cacheHit bool) {
	sl.logger.InfoContext(ctx, "Report built",
		FieldUser, user,
		FieldProfile, profile,
		FieldRecords, records,
		FieldYears, years,
		FieldCacheHit, cacheHit,
		FieldOperation, OpReport)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	sl.logger.ErrorContext(ctx, msg, fields.WithError(err).WithOperation(operation).ToSlice()...)
}
