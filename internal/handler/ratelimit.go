package handler

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/apperrors"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedLimiter holds one token bucket per client key.
type KeyedLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	lastPrune time.Time
	now       func() time.Time
}

// NewKeyedLimiter allows rps requests per second per key with the given burst.
func NewKeyedLimiter(rps float64, burst int) *KeyedLimiter {
	return &KeyedLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether key may make a request now.
func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastPrune) > limiterIdleTTL {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > limiterIdleTTL {
				delete(l.visitors, k)
			}
		}
		l.lastPrune = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// RateLimit rejects requests from a client address over its budget with 429.
// It runs after middleware.RealIP, so RemoteAddr is the client address.
func RateLimit(l *KeyedLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if host, _, err := net.SplitHostPort(key); err == nil {
				key = host
			}
			if !l.Allow(key) {
				writeJSON(w, http.StatusTooManyRequests, errorBody(apperrors.ErrRateLimited))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
