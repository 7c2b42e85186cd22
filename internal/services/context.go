package services

import "context"

type contextKey string

const (
	sessionIDKey  contextKey = "session_id"
	employeeIDKey contextKey = "employee_id"
	directionKey  contextKey = "direction"
	requestIDKey  contextKey = "request_id"
)

// WithSessionID annotates context with the workflow session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext returns the workflow session identifier if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithEmployeeID annotates context with the identified employee.
func WithEmployeeID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, employeeIDKey, id)
}

// EmployeeIDFromContext extracts the employee identifier if present.
func EmployeeIDFromContext(ctx context.Context) (int64, bool) {
	v := ctx.Value(employeeIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	default:
		return 0, false
	}
}

// WithDirection annotates context with the attendance direction (check_in/check_out).
func WithDirection(ctx context.Context, direction string) context.Context {
	if direction == "" {
		return ctx
	}
	return context.WithValue(ctx, directionKey, direction)
}

// DirectionFromContext returns the attendance direction if present.
func DirectionFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(directionKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
