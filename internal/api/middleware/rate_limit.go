package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"urlbox/internal/pkg/errors"
	"urlbox/internal/platform/config"
)

const idleLimiterTTL = 10 * time.Minute

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	store *sync.Map // map[string]*limiterEntry
	limit rate.Limit
	burst int
	now   func() time.Time
}

type limiterEntry struct {
	limiter    *rate.Limiter
	mu         sync.Mutex
	lastAccess time.Time
}

// NewRateLimiter builds a limiter from cfg. A zero rate disables limiting.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	burst := cfg.WebhookBurst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		store: &sync.Map{},
		limit: rate.Limit(cfg.WebhookPerSecond),
		burst: burst,
		now:   time.Now,
	}
}

// Cleanup drops limiters idle for longer than idleLimiterTTL until ctx is done.
func (rl *RateLimiter) Cleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() {
	now := rl.now()
	rl.store.Range(func(key, value interface{}) bool {
		entry := value.(*limiterEntry)
		entry.mu.Lock()
		if now.Sub(entry.lastAccess) > idleLimiterTTL {
			rl.store.Delete(key)
		}
		entry.mu.Unlock()
		return true
	})
}

func (rl *RateLimiter) Allow(key string) bool {
	if rl.limit <= 0 {
		return true
	}

	now := rl.now()
	val, _ := rl.store.LoadOrStore(key, &limiterEntry{
		limiter:    rate.NewLimiter(rl.limit, rl.burst),
		lastAccess: now,
	})

	entry := val.(*limiterEntry)
	entry.mu.Lock()
	entry.lastAccess = now
	entry.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "1")
			errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeRateLimitExceeded, "Rate limit exceeded", nil)
			return
		}
		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
