package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter allows each client a fixed number of requests per window.
// Clients are keyed by address without the port, so it belongs after
// TrustedRealIP in the chain.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	clients map[string]*client
	stop    chan struct{}
	once    sync.Once
}

type client struct {
	remaining int
	resetAt   time.Time
}

// NewRateLimiter starts a limiter and its janitor. Call Stop when done.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		limit:   limit,
		window:  window,
		now:     time.Now,
		clients: make(map[string]*client),
		stop:    make(chan struct{}),
	}
	go rl.janitor()
	return rl
}

// Stop ends the janitor goroutine.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) janitor() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

// evict forgets clients whose window ended.
func (rl *RateLimiter) evict() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, c := range rl.clients {
		if now.After(c.resetAt) {
			delete(rl.clients, key)
		}
	}
}

// allow consumes one request for key. When the client is over its limit it
// returns false and the time until its window resets.
func (rl *RateLimiter) allow(key string) (bool, time.Duration) {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[key]
	if !ok || !now.Before(c.resetAt) {
		rl.clients[key] = &client{remaining: rl.limit - 1, resetAt: now.Add(rl.window)}
		return true, 0
	}
	if c.remaining <= 0 {
		return false, c.resetAt.Sub(now)
	}
	c.remaining--
	return true, 0
}

// Handler rejects requests over the limit with 429 and a Retry-After header.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if addr := remoteAddr(r.RemoteAddr); addr.IsValid() {
			key = addr.Unmap().String()
		}

		ok, retry := rl.allow(key)
		if !ok {
			secs := int(math.Ceil(retry.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded", "RATE_LIMITED")
			return
		}
		next.ServeHTTP(w, r)
	})
}
