package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minSecretBytes = 32

// Claims represents JWT claims carried by bearer tokens.
type Claims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies HS256 bearer tokens with a shared secret.
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// CodecOption configures TokenCodec behavior.
type CodecOption func(*TokenCodec)

// WithIssuer sets the iss claim written into tokens and required on parse.
func WithIssuer(issuer string) CodecOption {
	return func(c *TokenCodec) {
		c.issuer = strings.TrimSpace(issuer)
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewTokenCodec constructs a codec. The secret must carry at least 256 bits.
func NewTokenCodec(secret []byte, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) < minSecretBytes {
		return nil, ErrWeakSecret
	}
	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Generate signs a token for subject carrying roles. A non-positive ttl yields
// a token that is already expired.
func (c *TokenCodec) Generate(subject string, roles []string, ttl time.Duration) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("subject is required")
	}
	now := c.now().UTC()
	claims := Claims{
		Roles: dedupeRoles(roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseSubject verifies token and returns its subject.
func (c *TokenCodec) ParseSubject(token string) (string, error) {
	claims, err := c.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Parse verifies signature, structure and expiry. Expiry alone is reported as
// ErrTokenExpired; every other failure is ErrTokenInvalid.
func (c *TokenCodec) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	claims, err := c.parse(token, c.parserOptions()...)
	if err == nil {
		return claims, nil
	}
	if !errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ErrTokenInvalid
	}
	// Claims are validated before the signature, so confirm the signature
	// before reporting a forged token as merely expired.
	if _, err := c.parse(token, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation()); err != nil {
		return nil, ErrTokenInvalid
	}
	return nil, ErrTokenExpired
}

func (c *TokenCodec) parse(token string, opts ...jwt.ParserOption) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenInvalid
	}
	claims.Roles = dedupeRoles(claims.Roles)
	return claims, nil
}

func (c *TokenCodec) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	return opts
}

func dedupeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var normalized []string
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		normalized = append(normalized, role)
	}
	return normalized
}
