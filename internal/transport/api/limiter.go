package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdle     = 10 * time.Minute
	limiterSweepLen = 4096
)

// Limiter is a token bucket per player id.
type Limiter struct {
	every rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLimiter allows perSecond sustained actions with bursts of burst per player.
// perSecond <= 0 disables limiting.
func NewLimiter(perSecond float64, burst int, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	if burst <= 0 {
		burst = 1
	}
	l := &Limiter{every: rate.Inf, burst: burst, now: now, buckets: map[string]*bucket{}}
	if perSecond > 0 {
		l.every = rate.Limit(perSecond)
	}
	return l
}

func (l *Limiter) Allow(playerID string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[playerID]
	if !ok {
		if len(l.buckets) >= limiterSweepLen {
			l.sweepLocked(now)
		}
		b = &bucket{lim: rate.NewLimiter(l.every, l.burst)}
		l.buckets[playerID] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// RetryAfter is the time until one token refills.
func (l *Limiter) RetryAfter() time.Duration {
	if l.every == rate.Inf || l.every <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(l.every))
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) sweepLocked(now time.Time) {
	for id, b := range l.buckets {
		if now.Sub(b.seen) > limiterIdle {
			delete(l.buckets, id)
		}
	}
}
