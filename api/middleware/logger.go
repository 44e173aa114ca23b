package middleware

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/0xmhha/pns-indexer/internal/logger"
)

// responseWriter captures the status code written by a handler
type responseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (rw *responseWriter) Status() int {
	return rw.status
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

// Logger logs each request at a level chosen by the response status.
// Handlers find a request-scoped logger with logger.FromContext.
func Logger(base *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			log := base
			if id := chimiddleware.GetReqID(r.Context()); id != "" {
				log = base.With(zap.String("request_id", id))
			}
			r = r.WithContext(logger.WithLogger(r.Context(), log))

			next.ServeHTTP(wrapped, r)

			status := wrapped.Status()
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
			}

			switch {
			case status >= 500:
				log.Error("admin request failed", fields...)
			case status >= 400:
				log.Warn("admin request rejected", fields...)
			case r.Method == http.MethodGet:
				// status and metrics are polled; keep them out of info logs
				log.Debug("admin request", fields...)
			default:
				log.Info("admin request", fields...)
			}
		}
		return http.HandlerFunc(fn)
	}
}
