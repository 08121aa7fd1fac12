package api

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitOptions bounds how fast one caller may submit tasks.
type RateLimitOptions struct {
	Enabled   bool
	PerSecond float64
	Burst     int
	IdleTTL   time.Duration
}

const defaultLimiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// ownerLimiter keeps one token bucket per caller and forgets buckets idle
// for longer than idleTTL.
type ownerLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	now       func() time.Time
	entries   map[string]*limiterEntry
	lastPrune time.Time
}

func newOwnerLimiter(o RateLimitOptions, now func() time.Time) *ownerLimiter {
	if !o.Enabled || o.PerSecond <= 0 {
		return nil
	}
	burst := o.Burst
	if burst <= 0 {
		burst = 1
	}
	ttl := o.IdleTTL
	if ttl <= 0 {
		ttl = defaultLimiterIdleTTL
	}
	return &ownerLimiter{
		limit:   rate.Limit(o.PerSecond),
		burst:   burst,
		idleTTL: ttl,
		now:     now,
		entries: make(map[string]*limiterEntry),
	}
}

// reserve takes a token for key. When none is available it returns false
// and how long the caller should wait.
func (l *ownerLimiter) reserve(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) >= l.idleTTL {
		for k, e := range l.entries {
			if now.Sub(e.seen) >= l.idleTTL {
				delete(l.entries, k)
			}
		}
		l.lastPrune = now
	}

	e := l.entries[key]
	if e == nil {
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.seen = now

	res := e.lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second
	}
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return false, d
	}
	return true, 0
}

func (l *ownerLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// rateLimit throttles the wrapped handler per caller. Anonymous callers
// are keyed by remote address.
func (a *API) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lim := a.state().limiter
		if lim == nil {
			next.ServeHTTP(w, r)
			return
		}
		key := UserID(r.Context())
		if key == "" {
			key = "addr:" + remoteHost(r)
		}
		ok, wait := lim.reserve(key)
		if !ok {
			secs := int(wait / time.Second)
			if wait%time.Second != 0 {
				secs++
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			a.respondError(w, r, http.StatusTooManyRequests, "Too many requests. Please slow down.", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
