package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/senocak/authcore/internal/auth"
	"github.com/senocak/authcore/internal/cache"
)

const (
	// CachePrefix scopes user entries inside the cache namespace.
	CachePrefix     = "user:"
	DefaultCacheTTL = 3600 * time.Second
)

// Directory is the cache-aware entry point for user reads and writes.
type Directory struct {
	store  Store
	cache  *cache.ReadThrough
	ttl    time.Duration
	logger *slog.Logger
}

// DirectoryOption configures Directory.
type DirectoryOption func(*Directory)

// WithCacheTTL overrides how long user entries stay cached.
func WithCacheTTL(ttl time.Duration) DirectoryOption {
	return func(d *Directory) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithDirectoryLogger overrides the logger (defaults to slog.Default()).
func WithDirectoryLogger(l *slog.Logger) DirectoryOption {
	return func(d *Directory) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDirectory constructs Directory.
func NewDirectory(store Store, c *cache.ReadThrough, opts ...DirectoryOption) *Directory {
	d := &Directory{store: store, cache: c, ttl: DefaultCacheTTL, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var _ auth.AccountLookup = (*Directory)(nil)

// FindByEmail reads through the cache; ErrUserNotFound is never cached.
func (d *Directory) FindByEmail(ctx context.Context, email string) (User, error) {
	return cache.GetOrSet(ctx, d.cache, email, CachePrefix, d.ttl, func(ctx context.Context) (User, error) {
		return d.store.UserByEmail(ctx, email)
	})
}

// ExistsByEmail always asks the store.
func (d *Directory) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return d.store.EmailExists(ctx, email)
}

// Save persists u and then evicts its cache entry so the next read is fresh.
// An eviction failure is reported even though the write succeeded.
func (d *Directory) Save(ctx context.Context, u *User) (User, error) {
	if err := d.store.SaveUser(ctx, u); err != nil {
		return User{}, err
	}
	if err := d.cache.Invalidate(ctx, u.Email, CachePrefix); err != nil {
		return *u, fmt.Errorf("user %s saved, cache eviction failed: %w", u.Email, err)
	}
	return *u, nil
}

// Register creates a user holding ROLE_USER. passwordHash must already be hashed.
func (d *Directory) Register(ctx context.Context, name, lastName, email, passwordHash string) (User, error) {
	exists, err := d.ExistsByEmail(ctx, email)
	if err != nil {
		return User{}, err
	}
	if exists {
		return User{}, fmt.Errorf("%w: %s", ErrEmailTaken, email)
	}
	role, err := d.store.RoleByName(ctx, RoleUser)
	if err != nil {
		return User{}, fmt.Errorf("resolve %s: %w", RoleUser, err)
	}
	u := &User{Name: name, LastName: lastName, Email: email, PasswordHash: passwordHash, Roles: []Role{role}}
	return d.Save(ctx, u)
}

// DeleteAllUsers removes every user and sweeps the user cache entries.
func (d *Directory) DeleteAllUsers(ctx context.Context) error {
	if err := d.store.DeleteAllUsers(ctx); err != nil {
		return err
	}
	return d.cache.InvalidatePattern(ctx, CachePrefix)
}

// LoadPrincipalByEmail builds the request principal for a token subject.
func (d *Directory) LoadPrincipalByEmail(ctx context.Context, email string) (auth.Principal, error) {
	u, err := d.FindByEmail(ctx, email)
	if err != nil {
		return auth.Principal{}, err
	}
	authorities := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		authorities = append(authorities, auth.Authority(r.Name))
	}
	return auth.Principal{
		Subject:      u.Email,
		UserID:       u.ID,
		Name:         u.Name,
		Authorities:  authorities,
		PasswordHash: u.PasswordHash,
	}, nil
}

// FindAccount implements auth.AccountLookup.
func (d *Directory) FindAccount(ctx context.Context, email string) (auth.Account, error) {
	u, err := d.FindByEmail(ctx, email)
	if err != nil {
		return auth.Account{}, err
	}
	return auth.Account{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Roles:        u.RoleNames(),
	}, nil
}

// List returns one page of users, newest first.
func (d *Directory) List(ctx context.Context, q ListQuery) (Page, error) {
	q = q.normalized()
	items, total, err := d.store.ListUsers(ctx, q)
	if err != nil {
		return Page{}, err
	}
	return newPage(items, q, total), nil
}

func (d *Directory) RoleByName(ctx context.Context, name string) (Role, error) {
	return d.store.RoleByName(ctx, name)
}

// EnsureRoles creates the built-in roles when missing.
func (d *Directory) EnsureRoles(ctx context.Context) (map[string]Role, error) {
	out := make(map[string]Role, 2)
	for _, name := range []string{RoleAdmin, RoleUser} {
		role, err := d.store.RoleByName(ctx, name)
		if errors.Is(err, ErrRoleNotFound) {
			role, err = d.store.CreateRole(ctx, name)
			if err == nil {
				d.logger.InfoContext(ctx, "role created", "role", name)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("ensure role %s: %w", name, err)
		}
		out[name] = role
	}
	return out, nil
}

// Ping reports database reachability.
func (d *Directory) Ping(ctx context.Context) error {
	return d.store.Ping(ctx)
}
