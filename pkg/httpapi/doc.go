// Package httpapi exposes a rbac.Manager over HTTP.
//
// # Overview
//
// The package provides gorilla/mux handlers for role and user
// management, permission checks, and operational endpoints. Wire them
// into a router and serve:
//
//	manager := rbac.New(nil)
//	handlers := httpapi.NewHandlers(manager, logger)
//
//	router := mux.NewRouter()
//	handlers.RegisterRoutes(router)
//
//	http.ListenAndServe(":8080", router)
//
// # Endpoints
//
// Management:
//
//	POST   /api/v1/roles                     create or replace a role
//	GET    /api/v1/roles                     list roles
//	GET    /api/v1/roles/{id}                fetch one role
//	DELETE /api/v1/roles/{id}                remove a role
//	POST   /api/v1/users                     create or replace a user
//	GET    /api/v1/users                     list users
//	GET    /api/v1/users/{id}                fetch one user
//	PATCH  /api/v1/users/{id}                partial update
//	DELETE /api/v1/users/{id}                remove a user
//	POST   /api/v1/users/{id}/roles/{roleId} assign a role
//	DELETE /api/v1/users/{id}/roles/{roleId} revoke a role
//	GET    /api/v1/users/{id}/permissions    effective permissions
//
// Decisions:
//
//	POST /api/v1/check      single decision
//	POST /api/v1/check/all  every check must pass
//	POST /api/v1/check/any  at least one check must pass
//
// Operations:
//
//	GET  /api/v1/stats       user and role counts plus cache stats
//	POST /api/v1/cache/clear explicit cache invalidation
//	GET  /healthz            liveness
//
// # Decision Semantics
//
// Check endpoints reply 200 whether the decision allows or denies; the
// outcome is in the payload:
//
//	POST /api/v1/check
//	{"user_id": "alice", "action": "update", "resource": {"type": "article", "id": "a-1"}}
//
//	200 {"allowed": false, "reason": "update on article not permitted", ...}
//
// The optional "context" object is passed to context-scoped conditions
// as the ambient environment.
//
// # Route Protection
//
// RequirePermission gates arbitrary routes on a decision, using an
// IdentityFunc to name the acting user:
//
//	identity := httpapi.HeaderIdentity("X-User-ID")
//	router.Handle("/admin/reports",
//		httpapi.RequirePermission(manager, identity, "read", "report")(reportHandler))
//
// # Errors
//
// Malformed bodies and engine validation failures reply 400. Operations
// on unknown users or roles reply 404. Everything else replies 500. All
// error bodies carry {"error": "..."}.
package httpapi
