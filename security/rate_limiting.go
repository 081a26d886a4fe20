package security

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis  redis.Cmdable
	limit  int64
	window time.Duration
}

func NewRateLimiter(redisClient redis.Cmdable, perMinute int) *RateLimiter {
	return &RateLimiter{redis: redisClient, limit: int64(perMinute), window: time.Minute}
}

// Allow counts a request for key in the current window. Redis errors let
// the request through.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r.limit <= 0 {
		return true, nil
	}

	// The counter and its expiry are set together so a key can never be left
	// without a TTL.
	var count *redis.IntCmd
	_, err := r.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, r.window)
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("rate limit counter %s: %w", key, err)
	}
	return count.Val() <= r.limit, nil
}

// Limit is route middleware that rejects clients over the limit for scope.
// Authenticated clients are counted by record id, others by IP.
func (r *RateLimiter) Limit(scope string) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if r.isSuspiciousUserAgent(e.Request.UserAgent()) {
			return e.JSON(http.StatusForbidden, map[string]string{
				"error": "Access denied",
			})
		}

		client := clientIP(e)
		if e.Auth != nil {
			client = "user:" + e.Auth.Id
		}

		allowed, err := r.Allow(e.Request.Context(), fmt.Sprintf("ratelimit:%s:%s", scope, client))
		if err != nil {
			slog.Warn("Rate limiter unavailable", "error", err, "scope", scope)
		}
		if !allowed {
			return e.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return e.Next()
	}
}

// clientIP honours the app's trusted proxy headers when an app is attached.
func clientIP(e *core.RequestEvent) string {
	if e.App == nil {
		return e.RemoteIP()
	}
	return e.RealIP()
}

func (r *RateLimiter) isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
