// Package csrf keeps CSRF tokens in the shared key/value store so any
// replica can validate a token another replica issued.
package csrf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/senocak/authcore/internal/cache"
	"github.com/senocak/authcore/internal/ids"
)

const (
	HeaderName    = "X-XSRF-TOKEN"
	ParameterName = "_csrf"
	DefaultTTL    = 2 * time.Hour

	keyPrefix = "csrf:"
)

var (
	ErrMissingToken = errors.New("csrf: token missing")
	ErrInvalidToken = errors.New("csrf: token invalid or expired")
)

// Token is what clients receive and echo back in HeaderName.
type Token struct {
	HeaderName    string `json:"headerName"`
	ParameterName string `json:"parameterName"`
	Token         string `json:"token"`
}

// Repository issues and resolves tokens.
type Repository struct {
	store cache.Store
	ttl   time.Duration
}

// NewRepository stores tokens in store for ttl (DefaultTTL when <= 0).
func NewRepository(store cache.Store, ttl time.Duration) *Repository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Repository{store: store, ttl: ttl}
}

func key(token string) string { return keyPrefix + token }

// Generate creates and saves a fresh token.
func (r *Repository) Generate(ctx context.Context) (Token, error) {
	t := Token{HeaderName: HeaderName, ParameterName: ParameterName, Token: ids.New()}
	if err := r.Save(ctx, t); err != nil {
		return Token{}, err
	}
	return t, nil
}

// Save stores t, replacing any previous value for the same token.
func (r *Repository) Save(ctx context.Context, t Token) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("csrf: encode token: %w", err)
	}
	return r.store.Set(ctx, key(t.Token), string(raw), r.ttl)
}

// Load returns ErrInvalidToken for unknown or expired tokens.
func (r *Repository) Load(ctx context.Context, token string) (Token, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Token{}, ErrMissingToken
	}
	raw, err := r.store.Get(ctx, key(token))
	if errors.Is(err, cache.ErrCacheMiss) {
		return Token{}, ErrInvalidToken
	}
	if err != nil {
		return Token{}, err
	}
	var t Token
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return Token{}, ErrInvalidToken
	}
	return t, nil
}

// Delete forgets token.
func (r *Repository) Delete(ctx context.Context, token string) error {
	return r.store.Del(ctx, key(token))
}

// Require rejects state-changing requests whose HeaderName value does not
// resolve to a stored token. Safe methods pass through. reject writes the
// response for a failed check.
func Require(repo *Repository, reject func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
				next.ServeHTTP(w, r)
				return
			}
			if _, err := repo.Load(r.Context(), r.Header.Get(HeaderName)); err != nil {
				reject(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
