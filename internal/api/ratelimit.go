package api

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"mentalhealth-ai.bd/companion/internal/metrics"
)

// RateLimiterConfig holds per-scope token bucket settings.
type RateLimiterConfig struct {
	AuthRate        rate.Limit // sign-in, sign-up and recovery, per client IP
	AuthBurst       int
	WriteRate       rate.Limit // table writes, per user
	WriteBurst      int
	CleanupInterval time.Duration
}

// RateLimiterConfigPerMinute builds a config from per-minute budgets.
func RateLimiterConfigPerMinute(authPerMinute, writePerMinute int) RateLimiterConfig {
	return RateLimiterConfig{
		AuthRate:        rate.Limit(float64(authPerMinute) / 60.0),
		AuthBurst:       max(authPerMinute, 1),
		WriteRate:       rate.Limit(float64(writePerMinute) / 60.0),
		WriteBurst:      max(writePerMinute, 1),
		CleanupInterval: 5 * time.Minute,
	}
}

type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter keeps one token bucket per scope and key.
type RateLimiter struct {
	config  RateLimiterConfig
	metrics metrics.MetricsCollector

	mu       sync.Mutex
	limiters map[string]*keyLimiter

	stopCh chan struct{}
}

func NewRateLimiter(config RateLimiterConfig, mc metrics.MetricsCollector) *RateLimiter {
	if mc == nil {
		mc = metrics.Nop{}
	}
	rl := &RateLimiter{
		config:   config,
		metrics:  mc,
		limiters: make(map[string]*keyLimiter),
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop ends the background cleanup.
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// AuthMiddleware limits credential endpoints by client IP.
func (rl *RateLimiter) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := "auth:" + clientIP(r)
		if !rl.allow(key, rl.config.AuthRate, rl.config.AuthBurst) {
			rl.reject(w, "auth", key, rl.config.AuthRate)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WriteMiddleware limits table writes by authenticated user. Must run after
// the JWT middleware.
func (rl *RateLimiter) WriteMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := principalFrom(r.Context())
		if p == nil {
			writeError(w, http.StatusUnauthorized, CodeInvalidJWT, "Authorization required")
			return
		}
		key := "write:" + p.User.ID
		if !rl.allow(key, rl.config.WriteRate, rl.config.WriteBurst) {
			rl.reject(w, "write", key, rl.config.WriteRate)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(key string, limit rate.Limit, burst int) bool {
	rl.mu.Lock()
	kl, ok := rl.limiters[key]
	if !ok {
		kl = &keyLimiter{limiter: rate.NewLimiter(limit, burst)}
		rl.limiters[key] = kl
	}
	kl.lastAccess = time.Now()
	rl.mu.Unlock()
	return kl.limiter.Allow()
}

func (rl *RateLimiter) reject(w http.ResponseWriter, scope, key string, limit rate.Limit) {
	rl.metrics.RecordRateLimited(scope)
	slog.Warn("rate limit exceeded", slog.String("scope", scope), slog.String("key", key))

	retryAfter := 1
	if limit > 0 {
		retryAfter = max(int(math.Ceil(1.0/float64(limit))), 1)
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeError(w, http.StatusTooManyRequests, CodeRateLimited, "Too many requests. Please try again later.")
}

func (rl *RateLimiter) cleanupLoop() {
	if rl.config.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup drops buckets idle for more than two intervals.
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, kl := range rl.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(rl.limiters, key)
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
