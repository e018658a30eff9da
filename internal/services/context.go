package services

import "context"

type contextKey string

const (
	exportIDKey  contextKey = "export_id"
	operationKey contextKey = "operation"
	requestIDKey contextKey = "request_id"
)

// WithExportID annotates context with the export run identifier.
func WithExportID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, exportIDKey, id)
}

// ExportIDFromContext extracts the export run identifier if present.
func ExportIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(exportIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithOperation annotates context with the export operation name (ids/filter).
func WithOperation(ctx context.Context, operation string) context.Context {
	if operation == "" {
		return ctx
	}
	return context.WithValue(ctx, operationKey, operation)
}

// OperationFromContext returns the operation name if present.
func OperationFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(operationKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
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
