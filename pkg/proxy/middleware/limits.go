package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"mercator-hq/cursorgate/pkg/config"
	"mercator-hq/cursorgate/pkg/proxy"

	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an unused per-key limiter is kept.
const limiterIdleTTL = 10 * time.Minute

// RateLimitRecorder counts refused requests. *metrics.Collector implements it.
type RateLimitRecorder interface {
	RecordRateLimited()
}

// KeyLimiter holds one token bucket per API key.
type KeyLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	limiters  map[string]*keyEntry
	lastSweep time.Time
}

type keyEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyLimiter creates a limiter allowing rps sustained requests per key
// with the given burst.
func NewKeyLimiter(rps float64, burst int) *KeyLimiter {
	if burst < 1 {
		burst = 1
	}
	return &KeyLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
		limiters: make(map[string]*keyEntry),
	}
}

// Allow reports whether key may make a request now. When it may not, the
// returned duration is how long until the next token.
func (l *KeyLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	l.sweepLocked(now)
	e, ok := l.limiters[key]
	if !ok {
		e = &keyEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	res := e.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, 0
	}
	delay := res.DelayFrom(now)
	if delay == 0 {
		return true, 0
	}
	res.CancelAt(now)
	return false, delay
}

// Len returns the number of tracked keys.
func (l *KeyLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *KeyLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < limiterIdleTTL {
		return
	}
	l.lastSweep = now
	for key, e := range l.limiters {
		if now.Sub(e.lastSeen) > limiterIdleTTL {
			delete(l.limiters, key)
		}
	}
}

// RateLimitMiddleware refuses requests over the per-key rate with a 429 in
// the format of the request path and a Retry-After header. Requests with no
// API key pass through; the relay rejects them with 401. A disabled cfg
// yields a pass-through.
//
//	handler = RateLimitMiddleware(cfg.Limits, collector)(handler)
func RateLimitMiddleware(cfg config.LimitsConfig, recorder RateLimitRecorder) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := NewKeyLimiter(cfg.RequestsPerSecond, cfg.Burst)
	return rateLimit(limiter, recorder)
}

func rateLimit(limiter *KeyLimiter, recorder RateLimitRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := proxy.ExtractAPIKey(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ok, retryAfter := limiter.Allow(key)
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			if recorder != nil {
				recorder.RecordRateLimited()
			}
			if retryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			}
			proxy.WriteError(w, &proxy.RateLimitError{Message: "Rate limit exceeded for this API key"}, proxy.FormatForPath(r.URL.Path))
		})
	}
}
