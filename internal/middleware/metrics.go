package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"material-search/internal/metrics"
)

// MetricsConfig holds configuration for the metrics middleware
type MetricsConfig struct {
	// SkipPaths are path prefixes that are not recorded.
	SkipPaths []string
}

// DefaultMetricsConfig skips probes, the scrape endpoint and the long-lived
// event stream.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		SkipPaths: []string{"/metrics", "/health", "/healthz", "/livez", "/readyz", "/api/events"},
	}
}

// Metrics returns a middleware that records Prometheus request metrics.
func Metrics(config MetricsConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, path := range config.SkipPaths {
				if strings.HasPrefix(r.URL.Path, path) {
					next.ServeHTTP(w, r)
					return
				}
			}

			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			wrapped := newResponseWriter(w)
			start := time.Now()
			next.ServeHTTP(wrapped, r)

			path := normalizePath(r.URL.Path)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// parameterized routes whose last segment is collapsed to keep label
// cardinality bounded.
var parameterizedRoutes = []string{
	"/api/get_image/",
	"/api/get_video/",
}

// normalizePath maps request paths onto route templates. Anything that is
// not an API or probe route is reported as "/static".
func normalizePath(path string) string {
	for _, prefix := range parameterizedRoutes {
		if strings.HasPrefix(path, prefix) {
			return prefix + "{id}"
		}
	}
	if strings.HasPrefix(path, "/api/") || healthCheckPaths[path] || path == "/version" || path == "/login" || path == "/logout" {
		return path
	}
	return "/static"
}
