package web

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JonMunkholm/crm/internal/web/middleware"
)

var errRateLimited = errors.New("rate limit exceeded")

// visitorIdle is how long an IP may stay quiet before its bucket is dropped.
const visitorIdle = 3 * time.Minute

// rateLimiter keeps one token bucket per client IP. Each bucket refills at
// perMinute tokens per minute and holds at most perMinute tokens.
type rateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	perMinute int
	lastSweep time.Time
	now       func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		visitors:  make(map[string]*visitor),
		perMinute: perMinute,
		now:       time.Now,
	}
}

// allow reports whether ip may make another request, consuming a token if so.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	v, ok := rl.visitors[ip]
	if !ok {
		limit := rate.Limit(float64(rl.perMinute) / time.Minute.Seconds())
		v = &visitor{limiter: rate.NewLimiter(limit, rl.perMinute)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// sweep drops idle visitors, at most once per visitorIdle. Callers hold mu.
func (rl *rateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < visitorIdle {
		return
	}
	rl.lastSweep = now
	for ip, v := range rl.visitors {
		if now.Sub(v.lastSeen) > visitorIdle {
			delete(rl.visitors, ip)
		}
	}
}

// retryAfter is the number of seconds until one token refills.
func (rl *rateLimiter) retryAfter() int {
	return max(1, int(math.Ceil(time.Minute.Seconds()/float64(rl.perMinute))))
}

// rateLimit returns middleware that rejects requests over rl's budget with
// 429 and a Retry-After header.
func (s *Server) rateLimit(rl *rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.allow(middleware.ClientIP(r)) {
				w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
				s.respondError(w, r, errRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
