package router

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ovaphlow/pitchfork/service-attendance-go/pkg/utilities"
)

// RateLimit allows Burst requests per client IP and refills them evenly
// over Per.
type RateLimit struct {
	Burst int
	Per   time.Duration
}

var (
	// DefaultRateLimit applies to every route.
	DefaultRateLimit = RateLimit{Burst: 100, Per: time.Minute}
	// StrictRateLimit guards login and face verification.
	StrictRateLimit = RateLimit{Burst: 10, Per: time.Minute}
)

const idleLimiterTTL = 10 * time.Minute

type visitor struct {
	limiter *rate.Limiter
	seen    time.Time
}

type ipLimiter struct {
	mu       sync.Mutex
	limit    RateLimit
	visitors map[string]*visitor
	lastGC   time.Time
}

func newIPLimiter(l RateLimit) *ipLimiter {
	return &ipLimiter{limit: l, visitors: map[string]*visitor{}, lastGC: time.Now()}
}

func (l *ipLimiter) get(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastGC) > idleLimiterTTL {
		for k, v := range l.visitors {
			if now.Sub(v.seen) > idleLimiterTTL {
				delete(l.visitors, k)
			}
		}
		l.lastGC = now
	}
	v, ok := l.visitors[ip]
	if !ok {
		every := rate.Every(l.limit.Per / time.Duration(l.limit.Burst))
		v = &visitor{limiter: rate.NewLimiter(every, l.limit.Burst)}
		l.visitors[ip] = v
	}
	v.seen = now
	return v.limiter
}

// RateLimitMiddleware rejects a client with 429 once its bucket is empty.
func RateLimitMiddleware(l RateLimit) func(http.Handler) http.Handler {
	limiter := newIPLimiter(l)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.get(clientIP(r), time.Now()).Allow() {
				w.Header().Set("Retry-After", strconv.Itoa(int(l.Per.Seconds())))
				utilities.Fail(w, http.StatusTooManyRequests, "too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
