package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"

	"table1837/internal/metrics"
)

func newLoggingMiddleware(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snoop := httpsnoop.CaptureMetrics(next, w, r)
			status := strconv.Itoa(snoop.Code)
			if m != nil {
				m.HTTPLatency.WithLabelValues(r.Method, status).Observe(snoop.Duration.Seconds())
			}
			level := slog.LevelInfo
			if snoop.Code >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", snoop.Code,
				"bytes", snoop.Written,
				"duration", snoop.Duration,
			)
		})
	}
}
