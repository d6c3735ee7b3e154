package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Logger returns a request logging middleware using zerolog. A websocket
// upgrade hijacks the connection, so its entry is only written once the
// socket closes: those entries carry the session lifetime under their own
// message instead of polluting request latencies.
func Logger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				evt := logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("remote_addr", r.RemoteAddr)
				if ww.Status() == http.StatusSwitchingProtocols {
					evt.Dur("session", time.Since(start)).Msg("websocket session ended")
					return
				}
				evt.Dur("latency", time.Since(start)).Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
