package handler

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limitResult is the outcome of a rate limit check.
type limitResult struct {
	allowed    bool
	limit      int // requests per window
	remaining  int
	retryAfter time.Duration
}

// limiter keeps one token bucket per client key.
type limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
	window  time.Duration
	stop    chan struct{}
	once    sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newLimiter allows requests per window per key, with burst capacity.
func newLimiter(requests int, window time.Duration, burst int) *limiter {
	l := &limiter{
		buckets: make(map[string]*bucket),
		rate:    rate.Limit(float64(requests) / window.Seconds()),
		burst:   burst,
		window:  window,
		stop:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

func (l *limiter) allow(key string) limitResult {
	now := time.Now()
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	allowed := b.limiter.AllowN(now, 1)
	res := limitResult{
		allowed:   allowed,
		limit:     int(float64(l.rate) * l.window.Seconds()),
		remaining: max(int(b.limiter.TokensAt(now)), 0),
	}
	if !allowed {
		res.retryAfter = max(time.Duration(float64(time.Second)/float64(l.rate)), time.Second)
	}
	return res
}

func (l *limiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now().Add(-l.window))
		case <-l.stop:
			return
		}
	}
}

// cleanup drops buckets not seen since cutoff.
func (l *limiter) cleanup(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
		}
	}
}

func (l *limiter) close() {
	l.once.Do(func() { close(l.stop) })
}

func writeRateLimitHeaders(w http.ResponseWriter, res limitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.remaining))
	if !res.allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(res.retryAfter.Seconds())))
	}
}
