package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vango-dev/srasm/pkg/store"
)

// Logging logs every store update. Committed and skipped updates are logged
// at Debug, failures at Warn.
type Logging struct {
	logger *slog.Logger
}

// Slog creates the logging observer. A nil logger uses slog.Default().
func Slog(logger *slog.Logger) *Logging {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logging{logger: logger.With("component", "store")}
}

// ObserveUpdate implements store.Observer.
func (l *Logging) ObserveUpdate(ctx context.Context, ev store.UpdateEvent) {
	level := slog.LevelDebug
	attrs := []any{
		"slice", ev.Slice,
		"kind", ev.Kind,
		"outcome", ev.Outcome.String(),
		"listeners", ev.Listeners,
		"duration", ev.Duration,
	}
	if ev.Err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, "error", ev.Err)
	}
	l.logger.Log(ctx, level, "slice update", attrs...)
}

// ObserveSubscribers implements store.Observer.
func (l *Logging) ObserveSubscribers(slice string, delta int) {
	l.logger.Debug("slice subscribers changed", "slice", slice, "delta", delta)
}

// RequestLogger logs one line per HTTP request with the chi request id.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		})
	}
}
