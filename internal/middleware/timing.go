package middleware

import (
	"fmt"
	"log"
	"net/http"
	"time"
)

// Timing returns a middleware that logs slow requests and adds
// Server-Timing headers for client-side inspection.
func Timing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		w.Header().Set("Server-Timing", fmt.Sprintf("total;dur=%.2f", float64(duration.Nanoseconds())/1e6))

		if duration > 500*time.Millisecond {
			log.Printf("[SLOW] %s %s took %v (status: %d)",
				r.Method, r.URL.Path, duration, wrapped.statusCode)
		}
	})
}

// statusResponseWriter wraps http.ResponseWriter to capture the status code
type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
