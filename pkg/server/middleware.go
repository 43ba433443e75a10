package server

import (
	"net/http"
	"runtime/debug"

	"github.com/dockhand-sh/dockhand/pkg/logger"
)

// recoverMiddleware converts a handler panic into a structured 500 so a
// single bad request cannot take the server down.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Errorw("Panic while handling request",
					"method", r.Method,
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				writeRPCError(w, http.StatusInternalServerError, codeInvalidRequest, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
