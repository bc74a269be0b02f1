package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ratchet/pkg/rbac"
)

func newGatedHandler(t *testing.T) http.Handler {
	t.Helper()

	cfg := rbac.DefaultConfig()
	cfg.Logger = quietLogger()
	manager := rbac.New(cfg)

	ctx := context.Background()
	require.NoError(t, manager.AddRole(ctx, &rbac.Role{
		ID:   "admin",
		Name: "Admin",
		Permissions: []rbac.Permission{
			{Action: "manage", ResourceType: "policy"},
		},
	}))
	require.NoError(t, manager.AddUser(ctx, &rbac.User{ID: "alice", Roles: []string{"admin"}}))
	require.NoError(t, manager.AddUser(ctx, &rbac.User{ID: "bob"}))

	gate := RequirePermission(manager, HeaderIdentity("X-User-ID"), "manage", "policy")
	return gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRequirePermission_Allows(t *testing.T) {
	handler := newGatedHandler(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/admin/policies", nil)
	req.Header.Set("X-User-ID", "alice")

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequirePermission_DeniesWithReason(t *testing.T) {
	handler := newGatedHandler(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/admin/policies", nil)
	req.Header.Set("X-User-ID", "bob")

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "manage on policy not permitted")
}

func TestRequirePermission_MissingIdentity(t *testing.T) {
	handler := newGatedHandler(t)

	w := httptest.NewRecorder()

	handler.ServeHTTP(w, httptest.NewRequest("POST", "/admin/policies", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "authentication required")
}

func TestRequirePermission_UnknownUserIsForbidden(t *testing.T) {
	handler := newGatedHandler(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/admin/policies", nil)
	req.Header.Set("X-User-ID", "ghost")

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "does not exist")
}
