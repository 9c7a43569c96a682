package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	// IdleTTL drops the limiter of a key unseen for this long. Zero keeps
	// limiters forever.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
		IdleTTL:           10 * time.Minute,
	}
}

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet holds one limiter per key.
type limiterSet struct {
	mu        sync.Mutex
	cfg       RateLimitConfig
	limiters  map[string]*keyedLimiter
	lastSweep time.Time
}

func newLimiterSet(cfg RateLimitConfig) *limiterSet {
	return &limiterSet{cfg: cfg, limiters: make(map[string]*keyedLimiter)}
}

func (s *limiterSet) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep(now)
	kl, ok := s.limiters[key]
	if !ok {
		kl = &keyedLimiter{limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.BurstSize)}
		s.limiters[key] = kl
	}
	kl.lastSeen = now
	return kl.limiter
}

// sweep runs at most once per IdleTTL. Callers hold s.mu.
func (s *limiterSet) sweep(now time.Time) {
	if s.cfg.IdleTTL <= 0 || now.Sub(s.lastSweep) < s.cfg.IdleTTL {
		return
	}
	s.lastSweep = now
	for k, kl := range s.limiters {
		if now.Sub(kl.lastSeen) >= s.cfg.IdleTTL {
			delete(s.limiters, k)
		}
	}
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// maxRetryAfter caps the advertised wait for limiters that never refill.
const maxRetryAfter = 3600

// retryAfter is the number of whole seconds until lim can admit one request,
// at least 1 and at most maxRetryAfter.
func retryAfter(lim *rate.Limiter, now time.Time) int {
	if lim.Limit() <= 0 {
		return 1
	}
	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return 1
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	if delay == rate.InfDuration {
		return maxRetryAfter
	}
	secs := int(math.Ceil(delay.Seconds()))
	switch {
	case secs < 1:
		return 1
	case secs > maxRetryAfter:
		return maxRetryAfter
	}
	return secs
}

// RateLimit applies a limiter per tenant. Requests without a bound tenant
// share limiters by client IP.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	set := newLimiterSet(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "ip:" + c.RealIP()
			if tenantID, _ := c.Get("jwt_tenant_id").(string); tenantID != "" {
				key = "tenant:" + tenantID
			}

			now := time.Now()
			lim := set.get(key, now)
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			if !lim.AllowN(now, 1) {
				h.Set("Retry-After", strconv.Itoa(retryAfter(lim, now)))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
