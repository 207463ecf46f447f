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

// FromContext extracts a logger from the request context, falling back to
// the slog default.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
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

// LogHTTPEnd logs the completion of an HTTP request
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	if statusCode >= 400 && statusCode < 500 {
		level = slog.LevelWarn
	} else if statusCode >= 500 {
		level = slog.LevelError
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")).
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.Logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogSlotsDrawn records a successful allocation.
func (sl *StructuredLogger) LogSlotsDrawn(ctx context.Context, goalID, userID string, slots []int) {
	fields := NewFields().
		WithGoal(goalID, userID).
		WithOperation(OpDraw).
		WithComponent(ComponentPool)
	fields[FieldSlots] = slots

	sl.logger.Logger.InfoContext(ctx, "Slots drawn", fields.ToSlice()...)
}

// LogProofSubmitted records a new pending proof.
func (sl *StructuredLogger) LogProofSubmitted(ctx context.Context, goalID, userID, proofID string, slot int) {
	fields := NewFields().
		WithGoal(goalID, userID).
		WithProof(proofID, slot, "").
		WithOperation(OpSubmit).
		WithComponent(ComponentLedger)

	sl.logger.Logger.InfoContext(ctx, "Payment proof submitted", fields.ToSlice()...)
}

// LogProofDecided records a verification decision.
func (sl *StructuredLogger) LogProofDecided(ctx context.Context, goalID, verifierID, proofID string, slot int, decision string) {
	fields := NewFields().
		WithGoal(goalID, verifierID).
		WithProof(proofID, slot, decision).
		WithOperation(OpDecide).
		WithComponent(ComponentLedger)

	sl.logger.Logger.InfoContext(ctx, "Payment proof decided", fields.ToSlice()...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component string, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation).
		WithComponent(component)

	sl.logger.Logger.ErrorContext(ctx, msg, allFields.ToSlice()...)
}
