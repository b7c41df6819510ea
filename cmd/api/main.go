package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/senocak/authcore/internal/audit"
	"github.com/senocak/authcore/internal/auth"
	"github.com/senocak/authcore/internal/cache"
	"github.com/senocak/authcore/internal/config"
	"github.com/senocak/authcore/internal/csrf"
	"github.com/senocak/authcore/internal/httpapi"
	"github.com/senocak/authcore/internal/jobs"
	"github.com/senocak/authcore/internal/migrate"
	"github.com/senocak/authcore/internal/obs"
	"github.com/senocak/authcore/internal/users"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(obs.NewLogger(os.Stdout, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, nil); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// run owns every resource and returns when ctx is cancelled or the server
// fails. If ready is non-nil it receives the base URL once the listener is bound.
func run(ctx context.Context, cfg *config.Config, ready chan<- string) error {
	logger := slog.Default()
	obs.Init()
	build := obs.NewBuildInfo(cfg.AppVersion, cfg.AppCommit)
	obs.InitBuildInfo(build)

	db, err := users.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	applied, err := migrate.NewManager(db, migrate.Embedded(), migrate.WithLogger(logger)).Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("migrations complete", "applied", applied)

	rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to set up redis client: %w", err)
	}
	defer rdb.Close()

	store := cache.NewRedisStore(rdb)
	readThrough := cache.New(store,
		cache.WithDefaultTTL(cfg.CacheTTL),
		cache.WithLogger(logger),
		cache.WithLookupHook(obs.ObserveCacheLookup),
	)
	directory := users.NewDirectory(users.NewPGStore(db), readThrough,
		users.WithCacheTTL(cfg.CacheTTL),
		users.WithDirectoryLogger(logger),
	)
	hasher := auth.BcryptHasher{}

	if _, err := directory.EnsureRoles(ctx); err != nil {
		return err
	}
	if cfg.SeedData {
		n, err := directory.Seed(ctx, hasher, users.DefaultSeed)
		if err != nil {
			return fmt.Errorf("seed users: %w", err)
		}
		logger.Info("seed complete", "created", n)
	}

	tokens, err := auth.NewTokenCodec(cfg.JWTSecret, auth.WithIssuer(cfg.JWTIssuer))
	if err != nil {
		return err
	}

	locker := jobs.NewLocker(rdb, cfg.LockEnv)
	registry := obs.NewRegistry(
		obs.WithSampleCap(cfg.MetricsSampleCap),
		obs.WithBucketRetention(cfg.MetricsBucketRetention),
		obs.WithBuildInfo(build),
		obs.WithConnection("redis", func(ctx context.Context) map[string]any {
			alive := store.Ping(ctx) == nil
			locks, _ := store.ValuesForPattern(ctx, locker.KeyPattern())
			return map[string]any{"alive": alive, "schedulers": locks}
		}),
		obs.WithConnection("database", func(ctx context.Context) map[string]any {
			return map[string]any{"alive": directory.Ping(ctx) == nil}
		}),
		obs.WithSecurity(func(ctx context.Context) map[string]any {
			lock := "not locked"
			if jobs.AssertLocked(ctx) == nil {
				lock = "locked"
			}
			return map[string]any{"lock": lock, "csrfEnforced": cfg.CSRFEnforce}
		}),
	)

	api := httpapi.New(httpapi.Deps{
		Directory:     directory,
		Guard:         auth.NewGuard(directory, hasher, auth.WithGuardLogger(logger)),
		Tokens:        tokens,
		Hasher:        hasher,
		Cache:         readThrough,
		Registry:      registry,
		CSRF:          csrf.NewRepository(store, cfg.CSRFTTL),
		Audit:         audit.New(logger),
		Logger:        logger,
		TokenTTL:      cfg.JWTTTL,
		LockPattern:   locker.KeyPattern(),
		CSRFEnforce:   cfg.CSRFEnforce,
		RateBurst:     cfg.RateLoginBurst,
		RatePerSecond: cfg.RateLoginPerSecond,
	})

	if cfg.JobsEnabled {
		scheduler := jobs.NewScheduler(locker, logger)
		for _, job := range []jobs.Job{jobs.PerformanceJob(logger), jobs.CacheStatsJob(readThrough, logger)} {
			if err := scheduler.Add(job); err != nil {
				return err
			}
		}
		scheduler.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			scheduler.Stop(stopCtx)
		}()
	}

	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	server := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("authcore listening", "addr", ln.Addr().String(), "version", build.Version)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if ready != nil {
		ready <- "http://" + ln.Addr().String()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
