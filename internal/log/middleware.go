package log

import (
	"context"
	"log/slog"
	"net/http"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// Middleware creates HTTP middleware that adds a logger to the request context
func Middleware(logger *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), logger)))
		})
	}
}

// NewContext returns a copy of ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the request context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return wrap(slog.Default(), "unknown")
}

// RequestIDMiddleware adds request ID to logger context
func RequestIDMiddleware(extractRequestID func(*http.Request) string) func(http.Handler) http.Handler {
	return enrich(func(r *http.Request) (string, string) {
		return FieldRequestID, extractRequestID(r)
	})
}

// OwnerMiddleware tags the request logger with the authenticated owner.
// Requests without an owner pass through unchanged.
func OwnerMiddleware(ownerFrom func(context.Context) string) func(http.Handler) http.Handler {
	return enrich(func(r *http.Request) (string, string) {
		return FieldOwner, ownerFrom(r.Context())
	})
}

func enrich(attr func(*http.Request) (key, value string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, value := attr(r)
			if value == "" {
				next.ServeHTTP(w, r)
				return
			}
			logger := FromContext(r.Context()).With(key, value)
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), logger)))
		})
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogExpenseCreated logs successful expense creation
func (sl *StructuredLogger) LogExpenseCreated(ctx context.Context, owner, id string, amountCents int64, category, month string) {
	fields := NewFields().
		WithOwner(owner).
		WithExpense(id, amountCents, category, month).
		WithOperation(OpCreate)

	sl.logger.WithComponent(ComponentExpense).InfoContext(ctx, "Expense created successfully", fields.ToSlice()...)
}

// LogRequestFailed logs a request that ended in an error response. Server
// side failures log at error level, caller mistakes at debug.
func (sl *StructuredLogger) LogRequestFailed(ctx context.Context, operation string, statusCode int, errorType string, err error) {
	fields := NewFields().
		WithOperation(operation).
		WithStatus(statusCode, errorType).
		WithError(err)

	level := slog.LevelDebug
	msg := "Request rejected"
	if statusCode >= http.StatusInternalServerError {
		level = slog.LevelError
		msg = "Request failed"
	}
	sl.logger.Logger.Log(ctx, level, msg, fields.ToSlice()...)
}
