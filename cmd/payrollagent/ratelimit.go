package main

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/FaresOuhachi/HR-Payroll-Agent/api/handlers"
	"github.com/FaresOuhachi/HR-Payroll-Agent/types"
)

// clientLimiter 每个客户端 IP 一个令牌桶
type clientLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	if burst < 1 {
		burst = max(1, int(math.Ceil(rps)))
	}
	return &clientLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		idle:    3 * time.Minute,
		buckets: make(map[string]*bucket),
	}
}

// take 取一个令牌。拒绝时返回下一个令牌到达前需要等待的时间。
func (l *clientLimiter) take(client string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	b, ok := l.buckets[client]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[client] = b
	}
	b.seen = now
	l.mu.Unlock()

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return false, wait
	}
	return true, 0
}

// sweep 删除 idle 时间内没有请求的桶，返回剩余数量
func (l *clientLimiter) sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for client, b := range l.buckets {
		if now.Sub(b.seen) > l.idle {
			delete(l.buckets, client)
		}
	}
	return len(l.buckets)
}

func (l *clientLimiter) sweepEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateLimiter 按客户端 IP 限流，超限返回 429 并带 Retry-After。
// ctx 结束后清理 goroutine 退出。
func RateLimiter(ctx context.Context, rps float64, burst int, logger *zap.Logger) Middleware {
	limiter := newClientLimiter(rps, burst)
	go limiter.sweepEvery(ctx, time.Minute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := limiter.take(clientIP(r), time.Now())
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				handlers.WriteError(w, types.NewError(types.ErrRateLimited, "too many requests").
					WithRetryable(true), logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
