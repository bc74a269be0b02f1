package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/ratchet/pkg/contextkeys"
	"github.com/platinummonkey/ratchet/pkg/httputil"
	"github.com/platinummonkey/ratchet/pkg/rbac"
)

// Handlers exposes a Manager's management and decision operations over
// HTTP. Denials are results, not failures: check endpoints reply 200
// with the decision payload whether access was granted or not.
type Handlers struct {
	manager *rbac.Manager
	logger  *logrus.Logger
}

// NewHandlers creates HTTP handlers backed by the given manager
func NewHandlers(manager *rbac.Manager, logger *logrus.Logger) *Handlers {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handlers{
		manager: manager,
		logger:  logger,
	}
}

// RegisterRoutes registers all RBAC routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Roles
	router.HandleFunc("/api/v1/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/api/v1/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/api/v1/roles/{id}", h.GetRole).Methods("GET")
	router.HandleFunc("/api/v1/roles/{id}", h.DeleteRole).Methods("DELETE")

	// Users
	router.HandleFunc("/api/v1/users", h.CreateUser).Methods("POST")
	router.HandleFunc("/api/v1/users", h.ListUsers).Methods("GET")
	router.HandleFunc("/api/v1/users/{id}", h.GetUser).Methods("GET")
	router.HandleFunc("/api/v1/users/{id}", h.UpdateUser).Methods("PATCH")
	router.HandleFunc("/api/v1/users/{id}", h.DeleteUser).Methods("DELETE")
	router.HandleFunc("/api/v1/users/{id}/roles/{roleId}", h.AssignRole).Methods("POST")
	router.HandleFunc("/api/v1/users/{id}/roles/{roleId}", h.RevokeRole).Methods("DELETE")
	router.HandleFunc("/api/v1/users/{id}/permissions", h.GetUserPermissions).Methods("GET")

	// Decisions
	router.HandleFunc("/api/v1/check", h.Check).Methods("POST")
	router.HandleFunc("/api/v1/check/all", h.CheckAll).Methods("POST")
	router.HandleFunc("/api/v1/check/any", h.CheckAny).Methods("POST")

	// Operations
	router.HandleFunc("/api/v1/stats", h.Stats).Methods("GET")
	router.HandleFunc("/api/v1/cache/clear", h.ClearCache).Methods("POST")
	router.HandleFunc("/healthz", h.Healthz).Methods("GET")
}

// checkRequest is the body of POST /api/v1/check
type checkRequest struct {
	UserID   string                 `json:"user_id"`
	Action   string                 `json:"action"`
	Resource rbac.Resource          `json:"resource"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// batchCheckRequest is the body of POST /api/v1/check/all and /check/any
type batchCheckRequest struct {
	UserID string       `json:"user_id"`
	Checks []rbac.Check `json:"checks"`
}

// statsResponse is the body of GET /api/v1/stats
type statsResponse struct {
	Users int             `json:"users"`
	Roles int             `json:"roles"`
	Cache rbac.CacheStats `json:"cache"`
}

// logDecision records the outcome of a decision endpoint, keyed by the
// request ID. Denials are expected traffic and log at the same level
// as grants.
func (h *Handlers) logDecision(r *http.Request, fields logrus.Fields, decision rbac.Decision) {
	fields["request_id"] = contextkeys.GetRequestID(r.Context())
	fields["allowed"] = decision.Allowed
	fields["reason"] = decision.Reason
	h.logger.WithFields(fields).Info("access decision")
}

// writeEngineError maps engine errors to HTTP status codes: validation
// failures become 400, missing users and roles become 404, anything
// else becomes 500.
func (h *Handlers) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rbac.ErrInvalidRole),
		errors.Is(err, rbac.ErrInvalidUser),
		errors.Is(err, rbac.ErrInvalidPermission):
		httputil.WriteValidationError(w, err.Error())
	case errors.Is(err, rbac.ErrUserNotFound),
		errors.Is(err, rbac.ErrRoleNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	default:
		h.logger.WithError(err).Error("request failed")
		httputil.WriteInternalError(w, err)
	}
}

// CreateRole handles POST /api/v1/roles
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var role rbac.Role
	if !httputil.ParseJSONOrError(w, r, &role) {
		return
	}

	if err := h.manager.AddRole(r.Context(), &role); err != nil {
		h.writeEngineError(w, err)
		return
	}

	httputil.WriteCreated(w, role)
}

// ListRoles handles GET /api/v1/roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.manager.ListRoles(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"roles": roles,
		"count": len(roles),
	})
}

// GetRole handles GET /api/v1/roles/{id}
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	role, err := h.manager.GetRole(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if role == nil {
		httputil.WriteNotFoundError(w, "role not found: "+id)
		return
	}

	httputil.WriteSuccess(w, role)
}

// DeleteRole handles DELETE /api/v1/roles/{id}. Deleting an absent role
// succeeds.
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.RemoveRole(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeEngineError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// CreateUser handles POST /api/v1/users
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var user rbac.User
	if !httputil.ParseJSONOrError(w, r, &user) {
		return
	}

	if err := h.manager.AddUser(r.Context(), &user); err != nil {
		h.writeEngineError(w, err)
		return
	}

	httputil.WriteCreated(w, user)
}

// ListUsers handles GET /api/v1/users
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.manager.ListUsers(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

// GetUser handles GET /api/v1/users/{id}
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	user, err := h.manager.GetUser(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if user == nil {
		httputil.WriteNotFoundError(w, "user not found: "+id)
		return
	}

	httputil.WriteSuccess(w, user)
}

// UpdateUser handles PATCH /api/v1/users/{id}. Omitted fields keep
// their stored values; attributes merge key by key.
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var patch rbac.UserPatch
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}

	if err := h.manager.UpdateUser(r.Context(), id, patch); err != nil {
		h.writeEngineError(w, err)
		return
	}

	user, err := h.manager.GetUser(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	httputil.WriteSuccess(w, user)
}

// DeleteUser handles DELETE /api/v1/users/{id}
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.RemoveUser(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeEngineError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// AssignRole handles POST /api/v1/users/{id}/roles/{roleId}
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.manager.AssignRole(r.Context(), vars["id"], vars["roleId"]); err != nil {
		h.writeEngineError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// RevokeRole handles DELETE /api/v1/users/{id}/roles/{roleId}
func (h *Handlers) RevokeRole(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.manager.RevokeRole(r.Context(), vars["id"], vars["roleId"]); err != nil {
		h.writeEngineError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// GetUserPermissions handles GET /api/v1/users/{id}/permissions
func (h *Handlers) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	permissions, err := h.manager.GetUserPermissions(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id":     id,
		"permissions": permissions,
		"count":       len(permissions),
	})
}

// Check handles POST /api/v1/check
func (h *Handlers) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Action, "action") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Resource.Type, "resource.type") {
		return
	}

	decision, err := h.manager.CanWithEnv(r.Context(), req.UserID, req.Action, req.Resource, req.Context)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.logDecision(r, logrus.Fields{
		"user_id":  req.UserID,
		"action":   req.Action,
		"resource": req.Resource.Type + "/" + req.Resource.ID,
	}, decision)
	httputil.WriteSuccess(w, decision)
}

// CheckAll handles POST /api/v1/check/all
func (h *Handlers) CheckAll(w http.ResponseWriter, r *http.Request) {
	var req batchCheckRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}

	decision, err := h.manager.CanAll(r.Context(), req.UserID, req.Checks)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.logDecision(r, logrus.Fields{
		"user_id": req.UserID,
		"mode":    "all",
		"checks":  len(req.Checks),
	}, decision)
	httputil.WriteSuccess(w, decision)
}

// CheckAny handles POST /api/v1/check/any
func (h *Handlers) CheckAny(w http.ResponseWriter, r *http.Request) {
	var req batchCheckRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}

	decision, err := h.manager.CanAny(r.Context(), req.UserID, req.Checks)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	h.logDecision(r, logrus.Fields{
		"user_id": req.UserID,
		"mode":    "any",
		"checks":  len(req.Checks),
	}, decision)
	httputil.WriteSuccess(w, decision)
}

// Stats handles GET /api/v1/stats
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	users, err := h.manager.UserCount(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	roles, err := h.manager.RoleCount(r.Context())
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	httputil.WriteSuccess(w, statsResponse{
		Users: users,
		Roles: roles,
		Cache: h.manager.CacheStats(),
	})
}

// ClearCache handles POST /api/v1/cache/clear. It exists for callers
// that write to the backing store without going through a Manager.
func (h *Handlers) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.manager.ClearCache()
	httputil.WriteNoContent(w)
}

// Healthz handles GET /healthz
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}
