package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Scope string

const (
	ScopeGeneral Scope = "general"
	ScopeAuth    Scope = "auth"
)

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter decides whether one more request from key fits the scope's budget.
type Limiter interface {
	Allow(ctx context.Context, scope Scope, key string) (Decision, error)
}

type RateLimitMiddleware struct {
	limiter    Limiter
	trustProxy bool
}

// NewRateLimitMiddleware keys budgets by client IP. Forwarded headers are
// only read when trustProxy is set.
func NewRateLimitMiddleware(limiter Limiter, trustProxy bool) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, trustProxy: trustProxy}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := ScopeGeneral
		if strings.HasPrefix(strings.ToLower(r.URL.Path), "/auth") {
			scope = ScopeAuth
		}

		decision, err := m.limiter.Allow(r.Context(), scope, extractClientIP(r, m.trustProxy))
		if err != nil {
			// Fail open: a broken limiter backend must not take auth down with it.
			slog.WarnContext(r.Context(), "rate limiter unavailable", "scope", scope, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if !decision.Allowed {
			w.Header().Set("Retry-After", retryAfterSeconds(decision.RetryAfter))
			writeError(w, http.StatusTooManyRequests, "TooManyRequestsError", "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

type clientLimiter struct {
	general  *rate.Limiter
	auth     *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps one token bucket pair per client in process memory.
type MemoryLimiter struct {
	generalRPM int
	authRPM    int
	mu         sync.Mutex
	clients    map[string]*clientLimiter
}

func NewMemoryLimiter(generalRPM int, authRPM int) *MemoryLimiter {
	if generalRPM <= 0 {
		generalRPM = 100
	}
	if authRPM <= 0 {
		authRPM = 10
	}

	return &MemoryLimiter{
		generalRPM: generalRPM,
		authRPM:    authRPM,
		clients:    map[string]*clientLimiter{},
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, scope Scope, key string) (Decision, error) {
	limiter := m.getLimiter(key)

	target := limiter.general
	if scope == ScopeAuth {
		target = limiter.auth
	}

	reservation := target.Reserve()
	delay := reservation.Delay()
	if delay == 0 {
		return Decision{Allowed: true}, nil
	}

	reservation.Cancel()
	return Decision{Allowed: false, RetryAfter: delay}, nil
}

func (m *MemoryLimiter) getLimiter(clientIP string) *clientLimiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limiter, exists := m.clients[clientIP]; exists {
		limiter.lastSeen = time.Now()
		m.gcLocked()
		return limiter
	}

	general := rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.generalRPM)), m.generalRPM)
	auth := rate.NewLimiter(rate.Every(time.Minute/time.Duration(m.authRPM)), m.authRPM)
	created := &clientLimiter{general: general, auth: auth, lastSeen: time.Now()}
	m.clients[clientIP] = created
	m.gcLocked()

	return created
}

func (m *MemoryLimiter) gcLocked() {
	if len(m.clients) < 1000 {
		return
	}

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, limiter := range m.clients {
		if limiter.lastSeen.Before(cutoff) {
			delete(m.clients, ip)
		}
	}
}

func extractClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
		if forwarded != "" {
			parts := strings.Split(forwarded, ",")
			if first := strings.TrimSpace(parts[0]); first != "" {
				return first
			}
		}

		realIP := strings.TrimSpace(r.Header.Get("X-Real-IP"))
		if realIP != "" {
			return realIP
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}

	if strings.TrimSpace(r.RemoteAddr) == "" {
		return "unknown"
	}

	return r.RemoteAddr
}
