package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-client token bucket limiter.
type RateLimitConfig struct {
	// RPS is the sustained number of requests per second per client.
	RPS float64
	// Burst is how many requests a client may make at once.
	Burst int
	// IdleTTL evicts clients not seen for this long. Zero disables eviction.
	IdleTTL time.Duration
	// KeyFunc identifies the client. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

type visitor struct {
	lim  *rate.Limiter
	seen time.Time
}

type limiterSet struct {
	cfg RateLimitConfig

	mu       sync.Mutex
	visitors map[string]*visitor
}

func newLimiterSet(cfg RateLimitConfig) *limiterSet {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &limiterSet{cfg: cfg, visitors: make(map[string]*visitor)}
}

func (s *limiterSet) limiter(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(rate.Limit(s.cfg.RPS), s.cfg.Burst)}
		s.visitors[key] = v
	}
	v.seen = now
	return v.lim
}

func (s *limiterSet) evict(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, v := range s.visitors {
		if now.Sub(v.seen) >= s.cfg.IdleTTL {
			delete(s.visitors, key)
		}
	}
}

func (s *limiterSet) runEviction(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.IdleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.evict(now)
		}
	}
}

// RateLimit rejects clients exceeding their token bucket with 429 and a
// Retry-After header. Every response carries X-RateLimit-Limit and
// X-RateLimit-Remaining. Idle clients are evicted until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	set := newLimiterSet(cfg)
	if set.cfg.IdleTTL > 0 {
		go set.runEviction(ctx)
	}
	limit := strconv.Itoa(set.cfg.Burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			lim := set.limiter(set.cfg.KeyFunc(r), now)

			res := lim.ReserveN(now, 1)
			delay := res.DelayFrom(now)
			allowed := res.OK() && delay == 0
			if !allowed {
				res.CancelAt(now)
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(max(0, int(lim.TokensAt(now)))))
			if !allowed {
				if delay <= 0 {
					delay = time.Second
				}
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// address host, in that order.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
