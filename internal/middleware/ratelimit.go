package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/therapii/api-server-go/internal/audit"
	apperrors "github.com/therapii/api-server-go/internal/errors"
)

const (
	cleanupInterval = 5 * time.Minute
	windowDuration  = time.Minute
)

// Limiter admits at most limit requests per key and minute.
type Limiter interface {
	Check(ctx context.Context, key string, limit int) (allowed bool, remaining int, resetAt int64)
}

// LocalRateLimiter keeps a token bucket per key in process memory.
type LocalRateLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	lastCleanup time.Time
}

func NewLocalRateLimiter() *LocalRateLimiter {
	return &LocalRateLimiter{
		limiters:    make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

func (rl *LocalRateLimiter) limiter(key string, limit int) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanup(time.Now())

	lim, ok := rl.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(windowDuration/time.Duration(limit)), limit)
		rl.limiters[key] = lim
	}
	return lim
}

// cleanup drops buckets that have refilled completely, which means they were
// idle for at least a window.
func (rl *LocalRateLimiter) cleanup(now time.Time) {
	if now.Sub(rl.lastCleanup) < cleanupInterval {
		return
	}
	rl.lastCleanup = now

	for key, lim := range rl.limiters {
		if lim.TokensAt(now) >= float64(lim.Burst()) {
			delete(rl.limiters, key)
		}
	}
}

func (rl *LocalRateLimiter) Check(_ context.Context, key string, limit int) (bool, int, int64) {
	if limit <= 0 {
		return true, 0, 0
	}
	lim := rl.limiter(key, limit)

	now := time.Now()
	allowed := lim.AllowN(now, 1)
	tokens := lim.TokensAt(now)

	remaining := max(int(tokens), 0)
	// Time until the next token is back in the bucket.
	missing := 1 - (tokens - float64(remaining))
	resetAt := now.Add(time.Duration(missing * float64(windowDuration) / float64(limit)))
	return allowed, remaining, resetAt.Unix()
}

// KeyFunc extracts the rate limit key of a request; "" skips limiting.
type KeyFunc func(*http.Request) string

// KeyByIP limits by client address.
func KeyByIP(r *http.Request) string {
	return audit.ClientIP(r)
}

// KeyByCaller limits by authenticated caller, falling back to the client address.
func KeyByCaller(r *http.Request) string {
	if id := CallerID(r.Context()); id != "" {
		return "user:" + id
	}
	return "ip:" + audit.ClientIP(r)
}

type RateLimitMiddleware struct {
	limiter Limiter
	limit   int
	prefix  string
	key     KeyFunc
}

func NewRateLimitMiddleware(limiter Limiter, limit int, prefix string, key KeyFunc) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		prefix:  prefix,
		key:     key,
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.key(r)
		if key == "" || m.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, resetAt := m.limiter.Check(r.Context(), m.prefix+":"+key, m.limit)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))

		if !allowed {
			retryAfter := max(resetAt-time.Now().Unix(), 1)
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))

			audit.LogFromRequest(r, audit.Event{
				Type:   audit.EventRateLimitExceed,
				UserID: CallerID(r.Context()),
				Details: map[string]interface{}{
					"scope": m.prefix,
					"path":  r.URL.Path,
				},
			})
			writeError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
