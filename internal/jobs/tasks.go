package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/senocak/authcore/internal/cache"
)

// PerformanceJob logs heap usage once a minute.
func PerformanceJob(logger *slog.Logger) Job {
	if logger == nil {
		logger = slog.Default()
	}
	return Job{
		Name:           "logPerformance",
		Spec:           "0 * * * * *",
		LockAtMostFor:  30 * time.Second,
		LockAtLeastFor: 5 * time.Second,
		Run: func(ctx context.Context) error {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			logger.InfoContext(ctx, "performance",
				"heap_alloc", HumanSize(m.HeapAlloc),
				"heap_sys", HumanSize(m.HeapSys),
				"heap_idle", HumanSize(m.HeapIdle),
				"sys", HumanSize(m.Sys),
				"goroutines", runtime.NumGoroutine(),
				"gc_cycles", m.NumGC,
			)
			return nil
		},
	}
}

// StatsSource reports cache statistics.
type StatsSource interface {
	Stats(ctx context.Context) (cache.Stats, error)
}

// CacheStatsJob logs the cache hit ratio every five minutes.
func CacheStatsJob(src StatsSource, logger *slog.Logger) Job {
	if logger == nil {
		logger = slog.Default()
	}
	return Job{
		Name:           "logCacheStats",
		Spec:           "0 */5 * * * *",
		LockAtMostFor:  30 * time.Second,
		LockAtLeastFor: 5 * time.Second,
		Run: func(ctx context.Context) error {
			st, err := src.Stats(ctx)
			if err != nil {
				return fmt.Errorf("cache stats: %w", err)
			}
			ratio := 0.0
			if st.Total > 0 {
				ratio = float64(st.Hits) / float64(st.Total) * 100
			}
			logger.InfoContext(ctx, "cache_stats",
				"hits", st.Hits, "misses", st.Misses, "keys", st.KeyCount,
				"hit_ratio", fmt.Sprintf("%.2f", ratio))
			return nil
		},
	}
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// HumanSize formats n in SI units with at most two decimals, e.g. "1.5 MB".
func HumanSize(n uint64) string {
	if n == 0 {
		return "0 Bytes"
	}
	v, exp := float64(n), 0
	for v >= 1000 && exp < len(sizeUnits)-1 {
		v /= 1000
		exp++
	}
	s := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
	return s + " " + sizeUnits[exp]
}
