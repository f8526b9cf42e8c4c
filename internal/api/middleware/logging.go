package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RequestLogger emits one structured line per completed request. Health and
// scrape endpoints log at debug so probes do not drown real traffic.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
				zap.String("correlation_id", GetCorrelationID(r.Context())),
			}
			if uid := GetUserID(r.Context()); uid != "" {
				fields = append(fields, zap.String("user_id", uid))
			}

			switch {
			case r.URL.Path == "/health" || r.URL.Path == "/metrics":
				logger.Debug("http request", fields...)
			case status >= http.StatusInternalServerError:
				logger.Error("http request", fields...)
			default:
				logger.Info("http request", fields...)
			}
		})
	}
}
