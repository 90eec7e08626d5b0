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
)

// RateLimitConfig configures the per-client sliding window limiter.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
	// Skip exempts requests from limiting, e.g. Telegram webhook deliveries
	// that all come from a few Bot API addresses.
	Skip func(*http.Request) bool
	// now is replaced in tests.
	now func() time.Time
}

type window struct {
	start time.Time
	curr  float64
	prev  float64
}

type limiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	clients map[string]*window
}

// take counts a request for key and reports whether it fits the limit,
// how many requests remain and when the current window ends.
func (l *limiter) take(key string, now time.Time) (ok bool, remaining int, reset time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.clients[key]
	if w == nil {
		w = &window{start: now.Truncate(l.cfg.Window)}
		l.clients[key] = w
	}
	switch elapsed := now.Sub(w.start); {
	case elapsed >= 2*l.cfg.Window:
		w.start, w.prev, w.curr = now.Truncate(l.cfg.Window), 0, 0
	case elapsed >= l.cfg.Window:
		w.start, w.prev, w.curr = w.start.Add(l.cfg.Window), w.curr, 0
	}

	// The previous window counts in proportion to its overlap with the
	// sliding window ending now.
	overlap := 1 - float64(now.Sub(w.start))/float64(l.cfg.Window)
	used := w.prev*math.Max(overlap, 0) + w.curr
	reset = w.start.Add(l.cfg.Window)
	if used >= float64(l.cfg.Max) {
		return false, 0, reset
	}
	w.curr++
	return true, max(int(float64(l.cfg.Max)-used-1), 0), reset
}

func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.clients {
		if now.Sub(w.start) >= 2*l.cfg.Window {
			delete(l.clients, key)
		}
	}
}

// RateLimit rejects clients over cfg.Max requests per cfg.Window with 429
// RATE_LIMITED. Idle clients are evicted until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	l := &limiter{cfg: cfg, clients: make(map[string]*window)}

	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.evict(now)
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			now := cfg.now()
			ok, remaining, reset := l.take(cfg.KeyFunc(r), now)
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(reset.Sub(now).Seconds()))))
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP or the remote
// address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
