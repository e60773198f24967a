package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"zontact/backend/internal/monitoring"
	"zontact/backend/internal/storage"
)

// RateLimitByIP 基于存储层计数器的单 IP 限流中间件。
//
// 计数器在 Redis/内存存储中滑动：计数失败时不放大故障，
// 回退到进程内令牌桶继续限流。
func RateLimitByIP(
	store storage.RateLimitRepository,
	logger *zap.Logger,
	metrics *monitoring.Metrics,
	limit int,
	window time.Duration,
) gin.HandlerFunc {
	fallback := newLocalLimiter(limit, window)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		key := fmt.Sprintf("ratelimit:submit:%s", ip)

		count, err := store.IncrementRateLimit(key, window)
		if err != nil {
			logger.Warn("rate limit counter unavailable, using local limiter", zap.Error(err))
			if !fallback.allow(ip) {
				reject(c, metrics)
				return
			}
			c.Next()
			return
		}

		if count > int64(limit) {
			reject(c, metrics)
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		c.Next()
	}
}

func reject(c *gin.Context, metrics *monitoring.Metrics) {
	metrics.RecordRateLimitBlock("ip")
	c.JSON(http.StatusTooManyRequests, gin.H{
		"message": "提交过于频繁，请稍后重试。",
	})
	c.Abort()
}

// localLimiter 进程内令牌桶，按 IP 维护
type localLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newLocalLimiter(limit int, window time.Duration) *localLimiter {
	return &localLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(limit) / window.Seconds()),
		burst:    limit,
	}
}

func (l *localLimiter) allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}
