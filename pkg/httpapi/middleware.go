package httpapi

import (
	"net/http"

	"github.com/platinummonkey/ratchet/pkg/httputil"
	"github.com/platinummonkey/ratchet/pkg/rbac"
)

// IdentityFunc extracts the acting user's ID from a request. Returning
// "" marks the request unauthenticated.
type IdentityFunc func(r *http.Request) string

// HeaderIdentity extracts the user ID from a request header
func HeaderIdentity(header string) IdentityFunc {
	return func(r *http.Request) string {
		return r.Header.Get(header)
	}
}

// RequirePermission gates a route on a permission decision. Requests
// without an identity get 401, denied requests get 403 with the
// decision's reason, and engine failures get 500. The resource carries
// only its type, so conditions that inspect resource attributes will
// not match here; gate those routes inside the handler instead.
func RequirePermission(manager *rbac.Manager, identity IdentityFunc, action, resourceType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := identity(r)
			if userID == "" {
				httputil.WriteErrorMessage(w, http.StatusUnauthorized, "authentication required")
				return
			}

			decision, err := manager.Can(r.Context(), userID, action, rbac.Resource{Type: resourceType})
			if err != nil {
				httputil.WriteInternalError(w, err)
				return
			}
			if !decision.Allowed {
				httputil.WriteErrorMessage(w, http.StatusForbidden, decision.Reason)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
