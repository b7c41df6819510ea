package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/senocak/authcore/internal/auth"
	"github.com/senocak/authcore/internal/obs"
	"github.com/senocak/authcore/internal/users"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// authenticate attaches the principal for a valid bearer token. It never
// rejects a request: a missing, invalid or unresolvable token leaves the
// request anonymous and authorization decides later.
func (a *API) authenticate(next http.Handler) http.Handler {
	if a.Tokens == nil || a.Directory == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractBearerToken(r.Header.Get(authHeader))
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		subject, err := a.Tokens.ParseSubject(token)
		if err != nil {
			a.Logger.DebugContext(ctx, "bearer token ignored", "reason", err)
			next.ServeHTTP(w, r)
			return
		}
		principal, err := a.Directory.LoadPrincipalByEmail(ctx, subject)
		if err != nil {
			if errors.Is(err, users.ErrUserNotFound) {
				a.Logger.DebugContext(ctx, "token subject not found", "subject", subject)
			} else {
				a.Logger.WarnContext(ctx, "principal lookup failed", "subject", subject, "error", err)
			}
			next.ServeHTTP(w, r)
			return
		}
		ctx = auth.WithAuthentication(ctx, principal, token)
		obs.TagUser(ctx, principal.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearer):])
	return token, token != ""
}
