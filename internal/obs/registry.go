package obs

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// DefaultSampleCap bounds every sample ring (global, endpoint, bucket).
	DefaultSampleCap = 1000

	dayLayout  = "2006-01-02"
	hourLayout = "2006-01-02 15"
)

// Percentile95 returns the nearest-rank 95th percentile of samples:
// sorted[int((n-1)*0.95)], or 0 when empty. samples is not modified.
func Percentile95(samples []int64) int64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]int64(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)-1) * 0.95)
	return sorted[idx]
}

// ring keeps the most recent cap observations, dropping the oldest.
type ring struct {
	buf   []int64
	start int
	size  int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]int64, capacity)}
}

func (r *ring) add(v int64) {
	if len(r.buf) == 0 {
		return
	}
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) values() []int64 {
	out := make([]int64, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// BucketStats is the rendered view of one aggregation scope.
type BucketStats struct {
	RequestCount    int64   `json:"requestCount"`
	ErrorCount      int64   `json:"errorCount"`
	AvgResponseTime float64 `json:"avgResponseTime"`
	MaxResponseTime int64   `json:"maxResponseTime"`
	MinResponseTime int64   `json:"minResponseTime"`
	P95ResponseTime int64   `json:"p95ResponseTime"`
}

func (b BucketStats) asMap() map[string]any {
	return map[string]any{
		"requestCount":    b.RequestCount,
		"errorCount":      b.ErrorCount,
		"avgResponseTime": b.AvgResponseTime,
		"maxResponseTime": b.MaxResponseTime,
		"minResponseTime": b.MinResponseTime,
		"p95ResponseTime": b.P95ResponseTime,
	}
}

// stats accumulates one scope; callers hold the owning lock.
type stats struct {
	requestCount int64
	errorCount   int64
	totalTime    int64
	maxTime      int64
	minTime      int64
	samples      *ring
}

func newStats(sampleCap int) *stats {
	return &stats{minTime: math.MaxInt64, samples: newRing(sampleCap)}
}

func (s *stats) add(ms int64) {
	s.requestCount++
	s.totalTime += ms
	s.maxTime = max(s.maxTime, ms)
	s.minTime = min(s.minTime, ms)
	s.samples.add(ms)
}

func (s *stats) view() BucketStats {
	b := BucketStats{
		RequestCount:    s.requestCount,
		ErrorCount:      s.errorCount,
		MaxResponseTime: s.maxTime,
		P95ResponseTime: Percentile95(s.samples.values()),
	}
	if s.requestCount > 0 {
		b.AvgResponseTime = float64(s.totalTime) / float64(s.requestCount)
	}
	if s.minTime != math.MaxInt64 {
		b.MinResponseTime = s.minTime
	}
	return b
}

// EndpointView is a point-in-time copy of one (method, path) aggregate.
type EndpointView struct {
	Controller string                 `json:"controller,omitempty"`
	Overall    BucketStats            `json:"overall"`
	Daily      map[string]BucketStats `json:"daily"`
	Hourly     map[string]BucketStats `json:"hourly"`
}

type endpointMetrics struct {
	mu         sync.Mutex
	controller string
	overall    *stats
	daily      map[string]*stats
	hourly     map[string]*stats
}

func newEndpointMetrics(sampleCap int) *endpointMetrics {
	return &endpointMetrics{
		overall: newStats(sampleCap),
		daily:   make(map[string]*stats),
		hourly:  make(map[string]*stats),
	}
}

func bucket(m map[string]*stats, key string, sampleCap int) *stats {
	s, ok := m[key]
	if !ok {
		s = newStats(sampleCap)
		m[key] = s
	}
	return s
}

// Probe reports the liveness of an external dependency.
type Probe func(ctx context.Context) map[string]any

// Registry aggregates request counts, errors and latency globally and per
// (method, path) with day and hour rollups.
type Registry struct {
	now       func() time.Time
	startTime time.Time
	sampleCap int
	retention time.Duration

	requestCount atomic.Int64
	errorCount   atomic.Int64

	mu      sync.Mutex
	global  *stats
	epMu    sync.RWMutex
	byRoute map[string]map[string]*endpointMetrics

	connections map[string]Probe
	security    Probe
	build       BuildInfo
}

// RegistryOption configures Registry.
type RegistryOption func(*Registry)

// WithSampleCap overrides the sample ring capacity.
func WithSampleCap(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.sampleCap = n
		}
	}
}

// WithRegistryClock overrides time source (useful for tests).
func WithRegistryClock(fn func() time.Time) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.now = fn
		}
	}
}

// WithBucketRetention drops day and hour buckets older than d. Zero keeps
// every bucket for the life of the process.
func WithBucketRetention(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.retention = d
		}
	}
}

// WithConnection adds a named entry to the "connections" section.
func WithConnection(name string, p Probe) RegistryOption {
	return func(r *Registry) {
		if p != nil {
			r.connections[name] = p
		}
	}
}

// WithSecurity fills the "security" section.
func WithSecurity(p Probe) RegistryOption {
	return func(r *Registry) {
		r.security = p
	}
}

// WithBuildInfo fills the "build" section.
func WithBuildInfo(info BuildInfo) RegistryOption {
	return func(r *Registry) {
		r.build = info
	}
}

// NewRegistry constructs a Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		now:         time.Now,
		sampleCap:   DefaultSampleCap,
		byRoute:     make(map[string]map[string]*endpointMetrics),
		connections: make(map[string]Probe),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.startTime = r.now()
	r.global = newStats(r.sampleCap)
	return r
}

// RecordRequestStart counts a request and returns its start token.
func (r *Registry) RecordRequestStart() time.Time {
	r.requestCount.Add(1)
	return r.now()
}

// RecordCompletion reports the outcome of a request started at start.
func (r *Registry) RecordCompletion(method, path, controller string, start time.Time, isError bool) {
	elapsed := r.now().Sub(start).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	r.AddResponseTime(elapsed, method, path, controller)
	if isError {
		r.IncrementErrorCount(method, path)
	}
}

// AddResponseTime records one latency observation in milliseconds.
func (r *Registry) AddResponseTime(ms int64, method, path, controller string) {
	r.mu.Lock()
	r.global.add(ms)
	r.mu.Unlock()

	now := r.now()
	ep := r.endpoint(method, path)
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if controller != "" {
		ep.controller = controller
	}
	ep.overall.add(ms)
	bucket(ep.daily, now.Format(dayLayout), r.sampleCap).add(ms)
	bucket(ep.hourly, now.Format(hourLayout), r.sampleCap).add(ms)
	r.prune(ep, now)
}

// IncrementErrorCount counts an error globally and for (method, path).
func (r *Registry) IncrementErrorCount(method, path string) {
	r.errorCount.Add(1)

	now := r.now()
	ep := r.endpoint(method, path)
	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.overall.errorCount++
	bucket(ep.daily, now.Format(dayLayout), r.sampleCap).errorCount++
	bucket(ep.hourly, now.Format(hourLayout), r.sampleCap).errorCount++
}

func (r *Registry) endpoint(method, path string) *endpointMetrics {
	r.epMu.RLock()
	ep, ok := r.byRoute[method][path]
	r.epMu.RUnlock()
	if ok {
		return ep
	}

	r.epMu.Lock()
	defer r.epMu.Unlock()
	paths, ok := r.byRoute[method]
	if !ok {
		paths = make(map[string]*endpointMetrics)
		r.byRoute[method] = paths
	}
	ep, ok = paths[path]
	if !ok {
		ep = newEndpointMetrics(r.sampleCap)
		paths[path] = ep
	}
	return ep
}

// prune runs under ep.mu.
func (r *Registry) prune(ep *endpointMetrics, now time.Time) {
	if r.retention <= 0 {
		return
	}
	cutoff := now.Add(-r.retention)
	dropBefore(ep.hourly, hourLayout, cutoff.Truncate(time.Hour), now.Location())
	dropBefore(ep.daily, dayLayout, time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, now.Location()), now.Location())
}

func dropBefore(m map[string]*stats, layout string, cutoff time.Time, loc *time.Location) {
	for key := range m {
		t, err := time.ParseInLocation(layout, key, loc)
		if err != nil || t.Before(cutoff) {
			delete(m, key)
		}
	}
}

// Endpoint returns a copy of the aggregate for (method, path).
func (r *Registry) Endpoint(method, path string) (EndpointView, bool) {
	r.epMu.RLock()
	ep, ok := r.byRoute[method][path]
	r.epMu.RUnlock()
	if !ok {
		return EndpointView{}, false
	}
	return ep.view(), true
}

func (ep *endpointMetrics) view() EndpointView {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	v := EndpointView{
		Controller: ep.controller,
		Overall:    ep.overall.view(),
		Daily:      make(map[string]BucketStats, len(ep.daily)),
		Hourly:     make(map[string]BucketStats, len(ep.hourly)),
	}
	for k, s := range ep.daily {
		v.Daily[k] = s.view()
	}
	for k, s := range ep.hourly {
		v.Hourly[k] = s.view()
	}
	return v
}

// Snapshot renders the full health and metrics report.
func (r *Registry) Snapshot(ctx context.Context) map[string]any {
	total := r.requestCount.Load()
	errs := r.errorCount.Load()

	r.mu.Lock()
	global := r.global.view()
	totalTime := r.global.totalTime
	r.mu.Unlock()

	successRate := 100.0
	avg := 0.0
	if total > 0 {
		successRate = float64(total-errs) * 100.0 / float64(total)
		avg = float64(totalTime) / float64(total)
	}

	now := r.now()
	connections := make(map[string]any, len(r.connections))
	for name, probe := range r.connections {
		connections[name] = probe(ctx)
	}
	security := map[string]any{}
	if r.security != nil {
		security = r.security(ctx)
	}

	return map[string]any{
		"application": map[string]any{
			"status":    "UP",
			"startTime": r.startTime.UnixMilli(),
			"uptime":    now.Sub(r.startTime).Milliseconds(),
			"requests": map[string]any{
				"total":       total,
				"errors":      errs,
				"successRate": successRate,
				"performance": map[string]any{
					"avgResponseTime": avg,
					"maxResponseTime": global.MaxResponseTime,
					"minResponseTime": global.MinResponseTime,
					"p95ResponseTime": global.P95ResponseTime,
				},
			},
			"endpoints": r.endpointsSnapshot(),
		},
		"system":      systemSnapshot(),
		"connections": connections,
		"security":    security,
		"build":       r.build.asMap(),
		"health":      healthSnapshot(connections),
	}
}

func (r *Registry) endpointsSnapshot() map[string]any {
	r.epMu.RLock()
	routes := make(map[string]map[string]*endpointMetrics, len(r.byRoute))
	for method, paths := range r.byRoute {
		cp := make(map[string]*endpointMetrics, len(paths))
		for p, ep := range paths {
			cp[p] = ep
		}
		routes[method] = cp
	}
	r.epMu.RUnlock()

	out := make(map[string]any, len(routes))
	for method, paths := range routes {
		byPath := make(map[string]any, len(paths))
		for p, ep := range paths {
			v := ep.view()
			daily := make(map[string]any, len(v.Daily))
			for k, b := range v.Daily {
				daily[k] = b.asMap()
			}
			hourly := make(map[string]any, len(v.Hourly))
			for k, b := range v.Hourly {
				hourly[k] = b.asMap()
			}
			byPath[p] = map[string]any{
				"overall": v.Overall.asMap(),
				"daily":   daily,
				"hourly":  hourly,
			}
		}
		out[method] = byPath
	}
	return out
}

func systemSnapshot() map[string]any {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return map[string]any{
		"memory": map[string]any{
			"total": ms.Sys,
			"free":  ms.Sys - ms.HeapInuse,
			"max":   ms.HeapSys,
		},
		"processors": runtime.NumCPU(),
		"runtime": map[string]any{
			"version":    runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

func healthSnapshot(connections map[string]any) map[string]any {
	status := "UP"
	components := make(map[string]any, len(connections))
	for name, raw := range connections {
		componentStatus := "UP"
		if m, ok := raw.(map[string]any); ok {
			if alive, ok := m["alive"].(bool); ok && !alive {
				componentStatus = "DOWN"
				status = "DOWN"
			}
		}
		components[name] = map[string]any{"status": componentStatus}
	}
	return map[string]any{"status": status, "components": components}
}
