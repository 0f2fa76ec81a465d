package authz

import (
	"net/http"

	"github.com/resumekit/authz/pkg/audit"
	"github.com/resumekit/authz/pkg/contextkeys"
)

// Middleware guards HTTP handlers with permission checks. The caller's
// identity must already be in the request context under
// contextkeys.UserIDKey; authentication itself happens upstream.
type Middleware struct {
	authz Authorizer
}

// NewMiddleware creates permission-checking middleware.
func NewMiddleware(authz Authorizer) *Middleware {
	return &Middleware{authz: authz}
}

// RequirePermission lets the request through only when the user may
// perform action on resource. Responses: 401 without an identity, 500
// when the check itself fails (fail closed), 403 on denial.
func (m *Middleware) RequirePermission(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := contextkeys.GetUserID(ctx)
			if userID == "" {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			allowed, err := m.authz.HasPermission(ctx, userID, resource, action)
			if err != nil {
				http.Error(w, "Permission check failed", http.StatusInternalServerError)
				return
			}
			if !allowed {
				_ = audit.LogDenied(ctx, userID, resource, action)
				http.Error(w, "Insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyPermission lets the request through when at least one of
// the checks passes.
func (m *Middleware) RequireAnyPermission(checks ...Check) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := contextkeys.GetUserID(ctx)
			if userID == "" {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			allowed, err := m.authz.HasAnyPermission(ctx, userID, checks)
			if err != nil {
				http.Error(w, "Permission check failed", http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, "Insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAllPermissions lets the request through only when every check
// passes.
func (m *Middleware) RequireAllPermissions(checks ...Check) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := contextkeys.GetUserID(ctx)
			if userID == "" {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			allowed, err := m.authz.HasAllPermissions(ctx, userID, checks)
			if err != nil {
				http.Error(w, "Permission check failed", http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Error(w, "Insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
