package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultWriteBurst    = 10
	writeLimiterIdleTTL  = 15 * time.Minute
	writeLimiterSweepGap = 10 * time.Minute
)

// writeLimiter throttles mutating requests per token subject. Limiters for
// idle subjects expire from the cache.
type writeLimiter struct {
	mu       sync.Mutex
	limiters *cache.Cache
	rate     rate.Limit
	burst    int
}

// newWriteLimiter returns nil when perSecond is not positive.
func newWriteLimiter(perSecond float64, burst int) *writeLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = defaultWriteBurst
	}
	return &writeLimiter{
		limiters: cache.New(writeLimiterIdleTTL, writeLimiterSweepGap),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *writeLimiter) allow(subject string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	var limiter *rate.Limiter
	if cached, found := l.limiters.Get(subject); found {
		limiter = cached.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(l.rate, l.burst)
	}
	l.limiters.SetDefault(subject, limiter)
	return limiter.Allow()
}

func (h *httpHandler) limitWrites(c *gin.Context) {
	if h.writes == nil {
		c.Next()
		return
	}
	subject := c.GetString(subjectContextKey)
	if !h.writes.allow(subject) {
		h.logger.Warn("write rate limit exceeded",
			zap.String("subject", subject),
			zap.String("path", c.FullPath()))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited"})
		return
	}
	c.Next()
}
