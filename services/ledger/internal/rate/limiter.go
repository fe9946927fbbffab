package rate

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/aJV99/CommodiTrade-sub000/libs/metrics"
	"github.com/gin-gonic/gin"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is a fixed-window request counter.
type Limiter interface {
	Allow(ctx context.Context, key string, now time.Time) (Decision, error)
}

// CommandKey scopes the budget to one client on one command route, so a
// burst of executions does not starve trade capture for the same desk.
func CommandKey(c *gin.Context) string {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	return c.ClientIP() + "|" + c.Request.Method + " " + route
}

// Middleware rejects callers over the limit with 429. Limiter backend
// failures let the request through.
func Middleware(limiter Limiter, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		d, err := limiter.Allow(c.Request.Context(), CommandKey(c), time.Now())
		if err != nil {
			logger.Warn("rate limiter unavailable", "error", err)
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			path := c.FullPath()
			if path == "" {
				path = c.Request.URL.Path
			}
			metrics.RateLimited.WithLabelValues(path).Inc()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    "RATE_LIMITED",
				"message": "rate limit exceeded for " + c.Request.Method + " " + path,
			})
			return
		}
		c.Next()
	}
}
