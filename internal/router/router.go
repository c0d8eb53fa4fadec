package router

import (
	"net/http"

	"go.uber.org/zap"
)

// New wraps the terminal server with request logging
func New(terminalServer http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
		)
		terminalServer.ServeHTTP(w, r)
	})
}
