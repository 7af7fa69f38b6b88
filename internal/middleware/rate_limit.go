package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pawtrait/pawtrait-api/internal/pkg/response"
)

// RateLimiter is a fixed-window counter kept in Redis so every API
// instance shares the same budget. A nil client disables limiting.
type RateLimiter struct {
	client *redis.Client
	name   string
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(client *redis.Client, name string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		name:   name,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}
}

// Allow counts one hit for key. Redis errors fail open.
func (l *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l == nil || l.client == nil || l.limit <= 0 || l.window <= 0 {
		return true, 0, nil
	}

	now := l.now()
	windowStart := now.Truncate(l.window)
	redisKey := fmt.Sprintf("ratelimit:%s:%s:%d", l.name, key, windowStart.Unix())

	pipe := l.client.TxPipeline()
	hits := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, err
	}

	if hits.Val() > l.limit {
		return false, windowStart.Add(l.window).Sub(now), nil
	}
	return true, 0, nil
}

// PerUser limits authenticated requests by user id, falling back to client IP.
func (l *RateLimiter) PerUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		if userID := GetUserID(r.Context()); userID != uuid.Nil {
			key = userID.String()
		}

		ok, retryAfter, err := l.Allow(r.Context(), key)
		if err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("limiter", l.name).Msg("rate limiter unavailable, allowing request")
		}
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			response.TooManyRequests(w)
			return
		}

		next.ServeHTTP(w, r)
	})
}
