package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/ganttforge/ganttforge/pkg/api/response"
	"github.com/ganttforge/ganttforge/pkg/logger"
)

// Recovery returns a middleware that converts handler panics into a 500
// response instead of tearing down the connection.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					requestID := GetRequestID(r.Context())

					log.Error("Panic recovered",
						"error", err,
						"path", r.URL.Path,
						"method", r.Method,
						"request_id", requestID,
						"stack", string(debug.Stack()),
					)

					if requestID == "" {
						requestID = "unknown"
					}
					response.Error(w,
						http.StatusInternalServerError,
						response.ErrCodeInternalServer,
						fmt.Sprintf("Internal server error: %v", err),
						requestID,
					)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
