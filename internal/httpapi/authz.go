package httpapi

import (
	"net/http"

	"github.com/senocak/authcore/internal/audit"
	"github.com/senocak/authcore/internal/auth"
)

// RequireRoles lets the request through only when the principal holds one of
// roles (bare names, e.g. auth.RoleAdmin). No roles means auth.DefaultRoles.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return requireRoles(nil, roles...)
}

// requireRoles is RequireRoles plus an audit record for every denial.
func (a *API) requireRoles(roles ...string) func(http.Handler) http.Handler {
	return requireRoles(func(r *http.Request, err error) {
		_ = a.Audit.LogEvent(r.Context(), audit.EventAccessDenied, map[string]any{
			"path":     r.URL.Path,
			"required": roles,
			"reason":   err.Error(),
		})
	}, roles...)
}

func requireRoles(onDeny func(*http.Request, error), roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := auth.CheckAuthorized(r.Context(), roles...); err != nil {
				if onDeny != nil {
					onDeny(r, err)
				}
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
