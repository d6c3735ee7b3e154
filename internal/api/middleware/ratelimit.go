package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/worldlyfantasy/priospace-sub000/internal/metrics"
)

// wsConnectLimit caps websocket connection attempts per IP per window. A
// legitimate client opens one connection per sync session, so this only
// bites reconnect storms and abuse.
const (
	wsConnectLimit  = 30
	wsConnectWindow = time.Minute
)

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist []string // IPs or CIDRs exempt from rate limiting
}

// RateLimiter limits /ws connection attempts per client IP using a
// fixed window counter in Redis. Redis being down fails open: the relay
// keeps accepting connections.
type RateLimiter struct {
	client       *redis.Client
	logger       zerolog.Logger
	whitelist    []*net.IPNet
	whitelistIPs map[string]bool
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		client:       client,
		logger:       logger,
		whitelistIPs: make(map[string]bool),
	}

	// Parse whitelist entries
	for _, entry := range cfg.Whitelist {
		if strings.Contains(entry, "/") {
			// CIDR notation
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			// Single IP
			rl.whitelistIPs[entry] = true
		}
	}

	if len(cfg.Whitelist) > 0 {
		logger.Info().
			Int("ips", len(rl.whitelistIPs)).
			Int("cidrs", len(rl.whitelist)).
			Msg("rate limit whitelist configured")
	}

	return rl
}

// isWhitelisted checks if an IP is in the whitelist.
func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	if rl.whitelistIPs[ipStr] {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// Middleware enforces the connection limit on the wrapped handler.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		key := "ratelimit:ws:" + ip
		count, err := rl.client.Incr(r.Context(), key).Result()
		if err != nil {
			rl.logger.Warn().Err(err).Msg("rate limiter redis error, failing open")
			next.ServeHTTP(w, r)
			return
		}
		if count == 1 {
			rl.client.Expire(r.Context(), key, wsConnectWindow)
		}
		if count > wsConnectLimit {
			metrics.RateLimitHits.Inc()
			rl.logger.Warn().Str("ip", ip).Int64("count", count).Msg("connection rate limit hit")
			w.Header().Set("Retry-After", "60")
			http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the remote IP, honoring chi's RealIP rewrite.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
