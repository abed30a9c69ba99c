package middlewares

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter counts requests per client in fixed Redis windows.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// RateLimiterFromEnv reads RATE_LIMIT_MAX_REQUESTS (default 600) and RATE_LIMIT_WINDOW_SECONDS (default 60).
// It returns nil without a Redis client.
func RateLimiterFromEnv(client *redis.Client) *RateLimiter {
	if client == nil {
		return nil
	}
	return NewRateLimiter(client, int64Env("RATE_LIMIT_MAX_REQUESTS", 600), time.Duration(int64Env("RATE_LIMIT_WINDOW_SECONDS", 60))*time.Second)
}

func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	key := "RateLimit:" + c.ClientIP()

	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		// a Redis outage must not take the dashboard down
		_ = c.Error(err)
		c.Next()
		return
	}
	if count == 1 {
		rl.client.Expire(c.Request.Context(), key, rl.window)
	}

	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}
	c.Next()
}

func int64Env(key string, def int64) int64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return def
}
