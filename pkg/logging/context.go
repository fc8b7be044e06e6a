package logging

import (
	"context"
)

type contextKey string

const (
	RequestIDKey contextKey = "request_id"
	PrincipalKey contextKey = "principal"
	TraceIDKey   contextKey = "trace_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, PrincipalKey, principal)
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

func GetPrincipal(ctx context.Context) string {
	return stringValue(ctx, PrincipalKey)
}

func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetLogFields collects the request-scoped fields carried on the context
// for structured log enrichment.
func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 6)

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if principal := GetPrincipal(ctx); principal != "" {
		fields = append(fields, "principal", principal)
	}
	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, "trace_id", traceID)
	}

	return fields
}
