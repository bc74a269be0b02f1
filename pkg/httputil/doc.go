// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helper functions for JSON encoding/decoding, error
// responses, request validation, and common HTTP middleware.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteSuccess(w, roles)
//	httputil.WriteCreated(w, role)
//	httputil.WriteNoContent(w)
//
// Error responses (all reply with an ErrorResponse body):
//
//	httputil.WriteError(w, http.StatusBadRequest, err)
//	httputil.WriteValidationError(w, "user_id is required")
//	httputil.WriteNotFoundError(w, "role not found")
//	httputil.WriteInternalError(w, err)
//
// # Request Parsing
//
//	var req checkRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
//		return
//	}
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
//
// # Rate Limiting
//
// RateLimiter tracks token buckets per client key. The middleware
// rejects over-limit requests with 429 and Retry-After:
//
//	limiter := httputil.NewRateLimiter(&httputil.RateLimitConfig{
//		RequestsPerWindow: 600,
//		WindowDuration:    time.Minute,
//		BurstSize:         60,
//	})
//	limiter.StartCleanup(ctx)
//	handler = httputil.RateLimitMiddleware(limiter, nil)(handler)
//
// # Related Packages
//
//   - pkg/httpapi: RBAC management and decision endpoints
//   - pkg/contextkeys: request ID context plumbing
package httputil
