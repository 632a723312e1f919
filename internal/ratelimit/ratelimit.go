package ratelimit

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"timeline-service/internal/shared/httpx"
)

var ErrRateLimited = errors.New("rate limited")

// Limiter is a Redis-backed fixed-window rate limiter.
type Limiter struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Limiter { return &Limiter{rdb: rdb} }

// Allow reports whether the key may proceed within the window. Fails
// open when Redis is unreachable.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	k := "ratelimit:" + key
	n, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		log.Printf("ratelimit: redis error, failing open: %v", err)
		return true
	}
	if n == 1 {
		l.rdb.Expire(ctx, k, window)
	}
	return n <= int64(limit)
}

// LimitHTTP wraps next with a per-key fixed-window limit. keyFn derives
// the limiting key from the request (typically the authenticated user).
func (l *Limiter) LimitHTTP(limit int, window time.Duration, keyFn func(*http.Request) (string, error), next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := keyFn(r)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, err, "")
			return
		}
		if !l.Allow(r.Context(), key, limit, window) {
			httpx.WriteError(w, http.StatusTooManyRequests, ErrRateLimited, "retry_later")
			return
		}
		next.ServeHTTP(w, r)
	})
}
