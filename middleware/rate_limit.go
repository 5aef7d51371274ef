package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/AnTengye/contractrisk/pkg/logger"
	"github.com/gin-gonic/gin"
)

// RateLimiter counts requests per key in fixed windows shared by all keys
type RateLimiter struct {
	mu          sync.Mutex
	counts      map[string]int
	windowStart time.Time
	rate        int
	window      time.Duration
	now         func() time.Time
}

func NewRateLimiter(rate int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		counts:      make(map[string]int),
		windowStart: time.Now(),
		rate:        rate,
		window:      window,
		now:         time.Now,
	}
}

// Allow records one request for key. When the key is over its limit it
// returns false and how long until the current window ends.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.windowStart) >= l.window {
		l.counts = make(map[string]int)
		l.windowStart = now
	}

	if l.counts[key] >= l.rate {
		return false, l.window - now.Sub(l.windowStart)
	}
	l.counts[key]++
	return true, 0
}

// RateLimit limits requests per client IP
func RateLimit(rate int, window time.Duration) gin.HandlerFunc {
	return limitBy(NewRateLimiter(rate, window), "client_ip", func(c *gin.Context) string {
		return c.ClientIP()
	})
}

// TenantRateLimit limits requests per tenant and must run after
// AuthMiddleware. It guards the routes that call the AI provider.
func TenantRateLimit(rate int, window time.Duration) gin.HandlerFunc {
	return limitBy(NewRateLimiter(rate, window), "tenant", GetTenant)
}

func limitBy(limiter *RateLimiter, scope string, keyOf func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyOf(c)
		ok, retryAfter := limiter.Allow(key)
		if ok {
			c.Next()
			return
		}

		rateLimitedTotal.WithLabelValues(scope).Inc()
		logger.Warn(c.Request.Context(), "rate limit exceeded", scope, key, "route", c.FullPath())

		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": "Troppe richieste, riprova più tardi",
		})
	}
}
