package auth

import (
	"context"
	"strings"
)

const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"

	authorityPrefix = "ROLE_"
)

// DefaultRoles is the requirement applied when a route declares none:
// any authenticated caller.
var DefaultRoles = []string{RoleAdmin, RoleUser}

// Principal represents the authenticated caller of one request.
type Principal struct {
	Subject      string   `json:"subject"`
	UserID       string   `json:"user_id,omitempty"`
	Name         string   `json:"name,omitempty"`
	Authorities  []string `json:"authorities"`
	PasswordHash string   `json:"-"`
}

// Authority maps a bare role name to its authority string ("ADMIN" -> "ROLE_ADMIN").
// Names already carrying the prefix are returned unchanged.
func Authority(role string) string {
	role = strings.ToUpper(strings.TrimSpace(role))
	if role == "" || strings.HasPrefix(role, authorityPrefix) {
		return role
	}
	return authorityPrefix + role
}

// HasAuthority reports whether the principal was granted authority.
func (p Principal) HasAuthority(authority string) bool {
	for _, a := range p.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the principal holds at least one of roles.
func (p Principal) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if p.HasAuthority(Authority(role)) {
			return true
		}
	}
	return false
}

// CheckAuthorized returns ErrAccessDenied unless the context carries a
// principal holding one of roles. No roles means DefaultRoles.
func CheckAuthorized(ctx context.Context, roles ...string) error {
	if len(roles) == 0 {
		roles = DefaultRoles
	}
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return ErrAccessDenied
	}
	if !principal.HasAnyRole(roles...) {
		return ErrAccessDenied
	}
	return nil
}
