package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdle      = 10 * time.Minute
	limiterPruneSize = 1024
)

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// sessionLimiter throttles lock probing per session. Idle entries are
// pruned once the map grows past limiterPruneSize.
type sessionLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*limiterEntry
	now      func() time.Time
}

func newSessionLimiter(perSecond float64, burst int) *sessionLimiter {
	if perSecond <= 0 {
		perSecond = 2
	}
	if burst <= 0 {
		burst = 5
	}
	return &sessionLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

func (l *sessionLimiter) Allow(sessionID string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.limiters) >= limiterPruneSize {
		for id, e := range l.limiters {
			if now.Sub(e.seen) > limiterIdle {
				delete(l.limiters, id)
			}
		}
	}

	e, ok := l.limiters[sessionID]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[sessionID] = e
	}
	e.seen = now
	return e.limiter.AllowN(now, 1)
}
