// Package contextkeys provides centralized context key definitions
//
// All context keys used across the module are defined here. This
// prevents typos, documents dependencies, and makes key usage
// discoverable.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// RequestIDKey contains the request ID string
	// Set by: httputil.RequestIDMiddleware (pkg/httputil/middleware.go)
	// Used by: logging middleware, handlers that tag log lines
	// Type: string
	RequestIDKey Key = "request_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context, or "" when unset
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
