// Package config loads service settings from the environment.
package config

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/senocak/authcore/internal/obs"
)

const minSecretBytes = 32

// Config holds every environment setting the service reads.
type Config struct {
	DatabaseURL string
	RedisURL    string
	Port        string
	LogLevel    slog.Level

	// JWTSecret is the HMAC key, decoded from base64 when JWT_SECRET is valid base64.
	JWTSecret []byte
	JWTIssuer string
	JWTTTL    time.Duration

	CacheTTL time.Duration

	MetricsSampleCap       int
	MetricsBucketRetention time.Duration

	// Token bucket applied per client IP on login and register.
	RateLoginBurst     int
	RateLoginPerSecond int

	CSRFEnforce bool
	CSRFTTL     time.Duration

	SeedData    bool
	JobsEnabled bool
	LockEnv     string

	AppVersion string
	AppCommit  string
}

// LoadConfig reads environment variables and returns a validated Config.
// DATABASE_URL, REDIS_URL and JWT_SECRET are required.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	secret, err := decodeSecret(os.Getenv("JWT_SECRET"))
	if err != nil {
		return nil, err
	}
	cfg.JWTSecret = secret

	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	cfg.LogLevel = obs.ParseLevel(os.Getenv("LOG_LEVEL"))

	cfg.JWTIssuer = envString("JWT_ISSUER", "authcore")
	cfg.JWTTTL = envDuration("JWT_TTL", time.Hour)
	cfg.CacheTTL = envDuration("CACHE_TTL", time.Hour)

	cfg.MetricsSampleCap = envInt("METRICS_SAMPLE_CAP", obs.DefaultSampleCap)
	// Zero keeps every bucket; only a positive duration enables pruning.
	if v := os.Getenv("METRICS_BUCKET_RETENTION"); v != "" {
		cfg.MetricsBucketRetention = envDuration("METRICS_BUCKET_RETENTION", 0)
	}

	cfg.RateLoginBurst = envInt("RATE_LOGIN_BURST", 10)
	cfg.RateLoginPerSecond = envInt("RATE_LOGIN_PER_SECOND", 5)

	cfg.CSRFEnforce = envBool("CSRF_ENFORCE", false)
	cfg.CSRFTTL = envDuration("CSRF_TTL", 2*time.Hour)
	cfg.SeedData = envBool("SEED_DATA", false)
	cfg.JobsEnabled = envBool("JOBS_ENABLED", true)
	cfg.LockEnv = envString("LOCK_ENV", "ENV1")

	cfg.AppVersion = envString("APP_VERSION", "dev")
	cfg.AppCommit = envString("APP_COMMIT", "none")

	return cfg, nil
}

// decodeSecret accepts base64 (std or raw url) or the raw string itself. A
// value that decodes to fewer than minSecretBytes is taken as raw text.
func decodeSecret(v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	secret := []byte(v)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawURLEncoding} {
		if decoded, err := enc.DecodeString(v); err == nil && len(decoded) >= minSecretBytes {
			secret = decoded
			break
		}
	}
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes, got %d", minSecretBytes, len(secret))
	}
	return secret, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// envInt reads an env var as int, returning def if missing or unparseable.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

// envDuration reads an env var as time.Duration, returning def if missing or unparseable.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}
