package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/reearth/cms-items-api/internal/webservice/handlers"
	"golang.org/x/time/rate"
)

// maxTrackedIPs is the number of client limiters above which idle ones are dropped.
const maxTrackedIPs = 10000

// IPLimiter limits the request rate of each client IP.
type IPLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// NewIPLimiter returns a limiter allowing r requests per second to each client IP, with bursts of b.
func NewIPLimiter(r rate.Limit, b int) *IPLimiter {
	return &IPLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    b,
	}
}

func (l *IPLimiter) getLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[ip]
	if exists {
		return limiter
	}

	if len(l.limiters) >= maxTrackedIPs {
		l.evictIdle()
	}
	limiter = rate.NewLimiter(l.rate, l.burst)
	l.limiters[ip] = limiter
	return limiter
}

// evictIdle drops the limiters which refilled their whole burst, as a new limiter would behave the same.
func (l *IPLimiter) evictIdle() {
	for ip, limiter := range l.limiters {
		if limiter.Tokens() >= float64(l.burst) {
			delete(l.limiters, ip)
		}
	}
}

// Wrap rejects requests of clients over their rate with a RATE_LIMITED error.
func (l *IPLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.getLimiter(ip).Allow() {
			slog.Info("Rate limit exceeded", "ip", ip)
			handlers.WriteError(w, http.StatusTooManyRequests, handlers.CodeRateLimited, "Rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP returns the IP of the request remote address.
// Addresses without a port are used as is.
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
