package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/worldlyfantasy/priospace-sub000/internal/metrics"
)

// Metrics returns middleware that records Prometheus request metrics. The
// chi wrap writer is used so the /ws upgrade can still hijack the
// connection through it. The relay surface is a handful of fixed paths, so
// no path normalization is needed.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		metrics.HTTPRequestsTotal.WithLabelValues(
			r.Method, r.URL.Path, strconv.Itoa(ww.Status()),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			r.Method, r.URL.Path,
		).Observe(time.Since(start).Seconds())
	})
}
