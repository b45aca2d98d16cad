// Package middleware holds the chi middleware stack for the HTTP API.
package middleware

import (
	"net/http"
	"time"

	"github.com/ganttforge/ganttforge/pkg/logger"
)

// statusRecorder captures the status code and bytes written so the
// access log can report them after the handler returns.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// Logger writes one structured access-log line per request, correlated
// by request id. Responses of 5xx log at error level so server-side
// failures stand out at the default production level.
func Logger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			emit := log.Info
			if rec.status >= http.StatusInternalServerError {
				emit = log.Error
			}
			emit("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", time.Since(started).Milliseconds(),
				"size", rec.bytes,
				"remote_addr", r.RemoteAddr,
				"request_id", GetRequestID(r.Context()),
			)
		})
	}
}
