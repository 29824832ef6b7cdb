package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Siva-Pavan02/Computer-Science-AI/errors"
	"github.com/Siva-Pavan02/Computer-Science-AI/server/metrics"
	"golang.org/x/time/rate"
)

// RejectFunc answers a request turned away by RateLimiter or
// QueueMiddleware. retryAfter is a suggested wait in seconds.
type RejectFunc func(w http.ResponseWriter, r *http.Request, retryAfter int)

// RejectWithError writes a rate limit error envelope with a Retry-After header.
func RejectWithError(w http.ResponseWriter, r *http.Request, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	errors.WriteError(w, errors.NewRateLimitError(GetRequestID(r.Context()), retryAfter))
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per client IP with a token bucket.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int

	metrics *metrics.Metrics
	reject  RejectFunc
	now     func() time.Time
}

// NewRateLimiter allows requestsPerMinute per client with the given burst.
// m and reject may be nil.
func NewRateLimiter(requestsPerMinute, burst int, m *metrics.Metrics, reject RejectFunc) *RateLimiter {
	if reject == nil {
		reject = RejectWithError
	}
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		metrics:  m,
		reject:   reject,
		now:      time.Now,
	}
	rl.limit, rl.burst = limitFor(requestsPerMinute, burst)
	return rl
}

func limitFor(requestsPerMinute, burst int) (rate.Limit, int) {
	if burst < 1 {
		burst = 1
	}
	return rate.Every(time.Minute / time.Duration(max(requestsPerMinute, 1))), burst
}

// SetLimits changes the rate for new and existing clients.
func (rl *RateLimiter) SetLimits(requestsPerMinute, burst int) {
	limit, b := limitFor(requestsPerMinute, burst)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limit, rl.burst = limit, b
	for _, v := range rl.visitors {
		v.limiter.SetLimit(limit)
		v.limiter.SetBurst(b)
	}
}

func (rl *RateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = rl.now()
	return v.limiter
}

// Cleanup forgets clients idle for longer than maxIdle and returns how
// many were removed.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-maxIdle)
	removed := 0
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// Handler rejects requests that exceed the client's budget.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := rl.limiterFor(clientIP(r))

		res := limiter.ReserveN(rl.now(), 1)
		if delay := res.DelayFrom(rl.now()); !res.OK() || delay > 0 {
			res.Cancel()
			if rl.metrics != nil {
				rl.metrics.RateLimitHits.WithLabelValues("rate_limit").Inc()
			}
			rl.reject(w, r, int(math.Ceil(max(delay, time.Second).Seconds())))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP strips the port from RemoteAddr. Forwarding headers are not
// trusted since any client can set them.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
