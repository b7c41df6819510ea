package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/senocak/authcore/internal/audit"
	"github.com/senocak/authcore/internal/auth"
	"github.com/senocak/authcore/internal/cache"
	"github.com/senocak/authcore/internal/csrf"
	"github.com/senocak/authcore/internal/obs"
	"github.com/senocak/authcore/internal/users"
)

const (
	V1 = "/api/v1"

	maxBodyBytes    = 1 << 20
	defaultTokenTTL = time.Hour
)

// Deps wires the HTTP layer to the rest of the service.
type Deps struct {
	Directory *users.Directory
	Guard     *auth.Guard
	Tokens    *auth.TokenCodec
	Hasher    auth.PasswordHasher
	Cache     *cache.ReadThrough
	Registry  *obs.Registry
	CSRF      *csrf.Repository
	Audit     *audit.Logger
	Logger    *slog.Logger

	TokenTTL time.Duration
	// LockPattern matches the scheduler lock keys listed by /public/redis/schedulers.
	LockPattern string
	CSRFEnforce bool

	RateBurst     int
	RatePerSecond int
}

// API is the HTTP layer.
type API struct {
	Deps
	router chi.Router
}

// New builds the router. Zero rate settings fall back to a burst of 10 at 5 rps.
func New(d Deps) *API {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.TokenTTL <= 0 {
		d.TokenTTL = defaultTokenTTL
	}
	if d.RateBurst <= 0 {
		d.RateBurst = 10
	}
	if d.RatePerSecond <= 0 {
		d.RatePerSecond = 5
	}
	if d.Audit == nil {
		d.Audit = audit.New(d.Logger)
	}
	if d.Registry == nil {
		d.Registry = obs.NewRegistry()
	}
	a := &API{Deps: d}
	a.router = a.routes()
	return a
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(obs.RequestMetrics(a.Registry))
	r.Use(LoggingJSON(a.Logger))
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)
	r.Use(CORS)
	r.Use(MaxBodyBytes(maxBodyBytes))
	r.Use(a.authenticate)

	r.NotFound(a.notFound)
	r.MethodNotAllowed(a.methodNotAllowed)

	r.Get("/healthz", a.healthz)
	r.Get("/readyz", a.readyz)
	r.Handle("/metrics", obs.Handler())

	r.Route("/actuator", func(r chi.Router) {
		r.Use(a.requireRoles(auth.RoleAdmin))
		r.Get("/appHealth", a.appHealth)
		r.Get("/cache", a.cacheStats)
	})

	r.Route(V1, func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			limited := r.With(RateLimit(a.RateBurst, a.RatePerSecond))
			limited.Post("/login", a.login)
			limited.Post("/register", a.register)
			r.Get("/csrf", a.csrfToken)
		})
		r.Route("/public", func(r chi.Router) {
			r.Get("/ping", a.ping)
			r.Get("/redis/ping", a.redisPing)
			r.Get("/redis/schedulers", a.schedulers)
			r.Get("/lock", a.lockState)
		})
		r.Route("/user", func(r chi.Router) {
			if a.CSRFEnforce && a.CSRF != nil {
				r.Use(csrf.Require(a.CSRF, writeError))
			}
			r.With(a.requireRoles(auth.RoleAdmin, auth.RoleUser)).Get("/me", a.me)
			r.With(a.requireRoles(auth.RoleAdmin, auth.RoleUser)).Patch("/me", a.patchMe)
			r.With(a.requireRoles(auth.RoleAdmin)).Get("/", a.listUsers)
		})
	})
	return r
}

// Handler returns the root http.Handler.
func (a *API) Handler() http.Handler {
	return a.router
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.ready(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) ready(ctx context.Context) error {
	if a.Directory != nil {
		if err := a.Directory.Ping(ctx); err != nil {
			return err
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Store().Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads exactly one JSON value. Decoding problems become a 400
// BASIC_INVALID_INPUT response.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return newServerError(MandatoryInputMissing, http.StatusBadRequest, "body")
		}
		return newServerError(BasicInvalidInput, http.StatusBadRequest, err.Error())
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return newServerError(BasicInvalidInput, http.StatusBadRequest, "unexpected data after JSON body")
	}
	return nil
}
