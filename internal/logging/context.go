package logging

import (
	"context"
	"log/slog"

	"attendance/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldSessionID identifies a single check-in or check-out workflow run.
	FieldSessionID = "session_id"
	// FieldEmployeeID identifies the employee a log line concerns.
	FieldEmployeeID = "employee_id"
	// FieldDirection is check_in or check_out.
	FieldDirection = "direction"
	// FieldState is the workflow state name.
	FieldState = "state"
	// FieldCorrelationID is the standardized key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType classifies a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step to the operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if id, ok := services.SessionIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldSessionID, id))
	}
	if id, ok := services.EmployeeIDFromContext(ctx); ok {
		fields = append(fields, slog.Int64(FieldEmployeeID, id))
	}
	if dir, ok := services.DirectionFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldDirection, dir))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(toArgs(fields)...)
}
