package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/neomorfeo/budgetiq/internal/logger"
)

// RequestLogger stores a request scoped logger in the request context and
// logs every completed request. It must run after middleware.RequestID.
func RequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logger.WithFields(logger.WithContext(r.Context(), base),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("tenant_id", r.Header.Get("X-Tenant-ID")),
				zap.String("user_id", r.Header.Get("X-User-ID")),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))

			logger.FromContext(ctx).Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
