package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/kataras/iris/v12"
	"golang.org/x/time/rate"
)

// RateLimiter 按客户端限流，每个 key 一个令牌桶
type RateLimiter struct {
	limit rate.Limit
	burst int
	ttl   time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	sweep   time.Time
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewRateLimiter perSecond 为每秒补充的令牌数，burst 为桶容量
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		ttl:     10 * time.Minute,
		buckets: make(map[string]*bucket),
		sweep:   time.Now(),
	}
}

// Allow 检查 key 是否还有令牌
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()
	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.seen = now
	// 定期清理长时间不活跃的桶
	if now.Sub(rl.sweep) > rl.ttl {
		for k, v := range rl.buckets {
			if now.Sub(v.seen) > rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.sweep = now
	}
	rl.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

// RateLimit 限流中间件，登录用户按用户限流，匿名按 IP
func RateLimit(rl *RateLimiter) iris.Handler {
	return func(ctx iris.Context) {
		key := "ip:" + ctx.RemoteAddr()
		if id := IdentityFrom(ctx); !id.Anonymous() {
			key = "user:" + strconv.FormatInt(id.UserID, 10)
		}
		if !rl.Allow(key) {
			ctx.StopWithJSON(iris.StatusTooManyRequests, iris.Map{
				"error": "Request was throttled.",
			})
			return
		}
		ctx.Next()
	}
}
