package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"next-chatbot-go/pkg/log"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientRateLimiter 为每个客户端维护一个令牌桶，长时间不活跃的客户端由 Prune 回收。
type ClientRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limit    rate.Limit
	burst    int
	now      func() time.Time
}

// NewClientRateLimiter 创建限流器，requestsPerSecond <= 0 时不限流。
func NewClientRateLimiter(requestsPerSecond float64, burst int) *ClientRateLimiter {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &ClientRateLimiter{
		limiters: make(map[string]*limiterEntry),
		limit:    limit,
		burst:    burst,
		now:      time.Now,
	}
}

// Allow 消耗该客户端的一个令牌。
func (l *ClientRateLimiter) Allow(clientID string) bool {
	l.mu.Lock()
	now := l.now()
	entry, ok := l.limiters[clientID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[clientID] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// Len 返回当前跟踪的客户端数量。
func (l *ClientRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Prune 删除超过 idle 未请求的客户端，返回删除数量。
// 被删除的客户端下次请求时拿到满的令牌桶，所以 idle 应不小于令牌桶回满所需的时间。
func (l *ClientRateLimiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	pruned := 0
	for id, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, id)
			pruned++
		}
	}
	return pruned
}

// RunPruner 每隔 interval 调用一次 Prune，直到 ctx 结束。idle 或 interval 不大于 0 时直接返回。
func (l *ClientRateLimiter) RunPruner(ctx context.Context, idle, interval time.Duration) {
	if idle <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Prune(idle); n > 0 {
				log.Debugf("RateLimit: pruned %d idle clients", n)
			}
		}
	}
}

// RateLimit 按客户端限流，必须放在 AuthMiddleware 之后。
func RateLimit(l *ClientRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := ClientID(c)
		if !l.Allow(clientID) {
			log.Warnf("RateLimit: client %s exceeded limit on %s", clientID, c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": "请求过于频繁，请稍后再试",
			})
			return
		}
		c.Next()
	}
}
