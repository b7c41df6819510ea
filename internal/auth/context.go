package auth

import "context"

type authContextKey struct{}

// authentication is the per-request security state; it replaces a
// thread-bound security holder and never outlives the request context.
type authentication struct {
	principal Principal
	token     string
}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return WithAuthentication(ctx, principal, "")
}

// WithAuthentication attaches the principal and the bearer token it was resolved from.
func WithAuthentication(ctx context.Context, principal Principal, token string) context.Context {
	principal.Authorities = append([]string(nil), principal.Authorities...)
	return context.WithValue(ctx, authContextKey{}, &authentication{principal: principal, token: token})
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	state := stateFrom(ctx)
	if state == nil {
		return Principal{}, false
	}
	return state.principal, true
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	state := stateFrom(ctx)
	if state == nil || state.token == "" {
		return "", false
	}
	return state.token, true
}

func stateFrom(ctx context.Context) *authentication {
	if ctx == nil {
		return nil
	}
	v, _ := ctx.Value(authContextKey{}).(*authentication)
	return v
}
