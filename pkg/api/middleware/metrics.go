package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// MetricsRecorder receives HTTP request observations from the Metrics
// middleware. *metrics.Manager satisfies it.
type MetricsRecorder interface {
	RecordHTTPRequest(method, path, status string, duration time.Duration)
	IncActiveConnections()
	DecActiveConnections()
}

// Metrics returns a middleware that records request counts, latency and
// in-flight connections. The metrics endpoint itself and the websocket
// upgrade path are skipped: scraping must not count itself, and long-lived
// event streams would dominate the latency histogram.
func Metrics(recorder MetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/metrics") || strings.HasPrefix(r.URL.Path, "/ws/") {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			recorder.IncActiveConnections()
			defer recorder.DecActiveConnections()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			record := func() {
				recorder.RecordHTTPRequest(
					r.Method,
					normalizePath(r.URL.Path),
					strconv.Itoa(rec.status),
					time.Since(start),
				)
			}

			// A panicking handler still counts as a 500; the panic is
			// re-raised for Recovery to turn into a response.
			defer func() {
				if err := recover(); err != nil {
					rec.status = http.StatusInternalServerError
					record()
					panic(err)
				}
			}()

			next.ServeHTTP(rec, r)
			record()
		})
	}
}

// normalizePath collapses schedule IDs (UUIDs) and other identifiers into
// a :id placeholder so every stored schedule does not become its own label.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if len(part) == 36 && strings.Count(part, "-") == 4 {
			parts[i] = ":id"
			continue
		}
		if _, err := strconv.Atoi(part); err == nil && len(part) > 0 {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
