package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/worldlyfantasy/priospace-sub000/internal/api/middleware"
	"github.com/worldlyfantasy/priospace-sub000/internal/config"
	"github.com/worldlyfantasy/priospace-sub000/internal/relay"
)

// NewRouter creates and configures the HTTP router. redisClient may be nil,
// in which case the connection rate limiter is disabled.
func NewRouter(logger zerolog.Logger, cfg *config.Config, relaySrv *relay.Server, redisClient *redis.Client) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - peers connect from app instances anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := NewHandler(relaySrv)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	// Signaling websocket, rate limited per IP when Redis is configured.
	if redisClient != nil {
		limiter := middleware.NewRateLimiter(redisClient, logger, middleware.RateLimiterConfig{
			Whitelist: cfg.RateLimitWhitelist,
		})
		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Get("/ws", relaySrv.HandleWS)
		})
	} else {
		r.Get("/ws", relaySrv.HandleWS)
	}

	return r
}
