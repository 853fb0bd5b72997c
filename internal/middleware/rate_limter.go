package middleware

import (
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ==================== RateLimiter 访问者限流器 ====================

// RateLimiter 按 key 维度的令牌桶限流器
// 防止单个访问者频繁点赞或发布把平台 API 打到限流
type RateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]*limiterEntry
}

// limiterEntry 限流条目
type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter 每 interval 补充一个令牌，最多积攒 burst 个
func NewRateLimiter(interval time.Duration, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &RateLimiter{
		limit:   limit,
		burst:   burst,
		now:     time.Now,
		entries: make(map[string]*limiterEntry),
	}
}

// ==================== 限流检查 ====================

// CheckResult 检查结果
type CheckResult struct {
	Allowed    bool          // 是否允许
	RetryAfter time.Duration // 剩余冷却时间
}

// Check 检查并消耗一个令牌
func (r *RateLimiter) Check(key string) CheckResult {
	now := r.now()

	r.mu.Lock()
	entry, ok := r.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.entries[key] = entry
	}
	entry.lastSeen = now
	r.mu.Unlock()

	res := entry.limiter.ReserveN(now, 1)
	if !res.OK() {
		return CheckResult{Allowed: false, RetryAfter: time.Minute}
	}
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
		return CheckResult{Allowed: false, RetryAfter: delay}
	}
	return CheckResult{Allowed: true}
}

// Prune 清理长时间未访问的 key
func (r *RateLimiter) Prune(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, entry := range r.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(r.entries, key)
			removed++
		}
	}
	return removed
}

// Len 当前 key 数量
func (r *RateLimiter) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// ==================== Gin 中间件 ====================

// RateLimit 按访问者 + 操作维度限流，匿名访问按客户端 IP
//
// 使用示例:
//
//	likes.POST("/toggle", middleware.RateLimit(limiter, "like"), likeCtl.Toggle)
func RateLimit(limiter *RateLimiter, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		who := GetViewerID(c)
		if who == "" {
			who = "ip:" + c.ClientIP()
		}

		result := limiter.Check(scope + ":" + who)
		if !result.Allowed {
			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    429,
				"message": formatRetryMessage(result.RetryAfter),
				"data": gin.H{
					"retry_after": retryAfter,
					"scope":       scope,
				},
			})
			return
		}

		c.Next()
	}
}

// formatRetryMessage 格式化重试提示信息
func formatRetryMessage(d time.Duration) string {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	if seconds < 60 {
		return fmt.Sprintf("Too many requests, please retry in %d seconds.", seconds)
	}
	return fmt.Sprintf("Too many requests, please retry in %d minutes.", (seconds+59)/60)
}
