package auth

import (
	"context"
	"log/slog"
	"strings"

	"github.com/senocak/authcore/internal/obs"
)

// Account is the stored-user view needed to authenticate a caller.
type Account struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Roles        []string
}

// AccountLookup resolves accounts by login identifier (email).
type AccountLookup interface {
	FindAccount(ctx context.Context, email string) (Account, error)
}

// Guard validates credentials and builds the principal for a request.
type Guard struct {
	accounts AccountLookup
	hasher   PasswordHasher
	logger   *slog.Logger
}

// GuardOption configures Guard behavior.
type GuardOption func(*Guard)

// WithGuardLogger overrides the logger (defaults to slog.Default()).
func WithGuardLogger(l *slog.Logger) GuardOption {
	return func(g *Guard) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGuard constructs Guard.
func NewGuard(accounts AccountLookup, hasher PasswordHasher, opts ...GuardOption) *Guard {
	g := &Guard{accounts: accounts, hasher: hasher, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate resolves identifier and, when credential is non-nil, checks it
// against the stored hash. Lookup errors are returned untouched so a missing
// user stays distinguishable; a wrong password is always ErrInvalidCredentials.
// The returned context carries the principal.
func (g *Guard) Authenticate(ctx context.Context, identifier string, credential *string) (context.Context, Principal, error) {
	account, err := g.accounts.FindAccount(ctx, identifier)
	if err != nil {
		return ctx, Principal{}, err
	}
	if credential != nil {
		if err := g.hasher.Verify(account.PasswordHash, *credential); err != nil {
			g.logger.WarnContext(ctx, "credentials rejected", "user", account.Name)
			return ctx, Principal{}, ErrInvalidCredentials
		}
	}

	authorities := []string{Authority(RoleUser)}
	if holdsRole(account.Roles, RoleAdmin) {
		authorities = append(authorities, Authority(RoleAdmin))
	}
	principal := Principal{
		Subject:      account.Email,
		UserID:       account.ID,
		Name:         account.Name,
		Authorities:  authorities,
		PasswordHash: account.PasswordHash,
	}
	ctx = ContextWithPrincipal(ctx, principal)
	obs.TagUser(ctx, account.ID)
	g.logger.InfoContext(ctx, "authentication attached to request", "user", account.Name)
	return ctx, principal, nil
}

func holdsRole(roles []string, role string) bool {
	want := Authority(role)
	for _, r := range roles {
		if strings.EqualFold(Authority(r), want) {
			return true
		}
	}
	return false
}
