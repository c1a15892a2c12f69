package logging

import (
	"context"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// ModelIDKey is the context key for model identifiers.
	ModelIDKey contextKey = "model_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithModelID adds a model identifier to the context.
func WithModelID(ctx context.Context, modelID string) context.Context {
	return context.WithValue(ctx, ModelIDKey, modelID)
}

// GetModelID retrieves the model identifier from the context.
func GetModelID(ctx context.Context) string {
	if modelID, ok := ctx.Value(ModelIDKey).(string); ok {
		return modelID
	}
	return ""
}

// extractContextFields collects known context fields as slog key/value args.
func extractContextFields(ctx context.Context) []any {
	var fields []any
	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, string(RequestIDKey), requestID)
	}
	if modelID := GetModelID(ctx); modelID != "" {
		fields = append(fields, string(ModelIDKey), modelID)
	}
	return fields
}
