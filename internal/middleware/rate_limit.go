package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/thereayou/dealroom-chat/pkg/apperrors"
)

// RateLimiter is a fixed-window counter kept in Redis.
type RateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	logger *slog.Logger
}

func NewRateLimiter(client *redis.Client, prefix string, limit int, window time.Duration, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: prefix,
		logger: logger.With("component", "ratelimit"),
	}
}

// Allow counts one hit for key and reports whether it is within the limit.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	k := fmt.Sprintf("ratelimit:%s:%s", r.prefix, key)

	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, k, r.window).Err(); err != nil {
			return false, 0, err
		}
	}

	remaining := max(r.limit-int(count), 0)
	return int(count) <= r.limit, remaining, nil
}

// PerUser limits the authenticated caller. When Redis is unavailable the
// request goes through.
func (r *RateLimiter) PerUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if user, ok := CurrentUser(c); ok {
			key = user.ID.String()
		}

		allowed, remaining, err := r.Allow(c.Request.Context(), key)
		if err != nil {
			r.logger.Error("rate limit check failed", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(r.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !allowed {
			Abort(c, apperrors.ErrRateLimited)
			return
		}
		c.Next()
	}
}
