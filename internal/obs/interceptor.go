package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// RequestMetrics measures every request passing through next: the start is
// recorded before the chain runs and the outcome after it returns or panics.
// A response status >= 400 or a panic counts as an error.
func RequestMetrics(reg *Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := reg.RecordRequestStart()
			wallStart := time.Now()
			httpInFlight.Inc()

			sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
			completed := false
			defer func() {
				httpInFlight.Dec()
				code := sw.code
				if !completed {
					code = http.StatusInternalServerError
				}
				route := routePattern(r)
				reg.RecordCompletion(r.Method, r.URL.Path, route, start, !completed || code >= 400)

				label := route
				if label == "" {
					label = CanonicalPath(r.URL.Path)
				}
				status := strconv.Itoa(code)
				httpRequestDuration.WithLabelValues(r.Method, label, status).Observe(time.Since(wallStart).Seconds())
				httpRequestsTotal.WithLabelValues(r.Method, label, status).Inc()
			}()

			next.ServeHTTP(sw, r)
			completed = true
		})
	}
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}

type statusWriter struct {
	http.ResponseWriter
	code        int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.code = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
