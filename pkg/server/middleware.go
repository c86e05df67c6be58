package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/ao/serengeti/pkg/logging"
)

// recordRequests logs each request and feeds the HTTP metrics
func (s *Server) recordRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		status := strconv.Itoa(ww.Status())
		s.metrics.RecordHTTPRequest(r.Method, r.URL.Path, status, elapsed)
		s.log.Debug("http request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.String("status", status),
			logging.Duration("elapsed", elapsed))
	})
}

// recoverPanics turns a handler panic into a 500 instead of tearing
// down the connection.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("handler panic",
					logging.String("path", r.URL.Path),
					logging.String("panic", fmt.Sprintf("%v", rec)))
				writeJSON(w, http.StatusInternalServerError,
					map[string]string{"error": "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
