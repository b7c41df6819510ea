package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/senocak/authcore/internal/auth"
	"github.com/senocak/authcore/internal/cache"
	"github.com/senocak/authcore/internal/migrate"
	"github.com/senocak/authcore/internal/obs"
	"github.com/senocak/authcore/internal/users"
)

func main() {
	var (
		dsn      = flag.String("dsn", os.Getenv("DATABASE_URL"), "PostgreSQL DSN")
		redisURL = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL, used by seed to evict cached users")
		level    = flag.String("log-level", os.Getenv("LOG_LEVEL"), "log level")
	)
	flag.Parse()
	slog.SetDefault(obs.NewLogger(os.Stderr, obs.ParseLevel(*level)))

	if *dsn == "" {
		fatal("missing DSN: provide via -dsn or DATABASE_URL")
	}
	if len(flag.Args()) == 0 {
		fatal("usage: migrate [up|down|status|seed]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := users.Open(*dsn)
	if err != nil {
		fatal("open db", "err", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, migrate.Embedded())

	switch flag.Arg(0) {
	case "up":
		var n int
		n, err = mgr.Up(ctx)
		if err == nil {
			slog.Info("migrations applied", "count", n)
		}
	case "down":
		err = mgr.Down(ctx)
	case "status":
		var history []string
		history, err = mgr.Status(ctx)
		for _, item := range history {
			fmt.Println(item)
		}
	case "seed":
		err = seed(ctx, db, *redisURL)
	default:
		fatal("unknown command", "command", flag.Arg(0))
	}
	if err != nil {
		fatal("migrate failed", "command", flag.Arg(0), "err", err)
	}
}

func seed(ctx context.Context, db *sql.DB, redisURL string) error {
	if redisURL == "" {
		return fmt.Errorf("seed needs -redis or REDIS_URL")
	}
	rdb, err := cache.NewRedisClient(ctx, redisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	dir := users.NewDirectory(users.NewPGStore(db), cache.New(cache.NewRedisStore(rdb)))
	n, err := dir.Seed(ctx, auth.BcryptHasher{}, users.DefaultSeed)
	if err != nil {
		return err
	}
	slog.Info("seed complete", "created", n)
	return nil
}

func fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}
