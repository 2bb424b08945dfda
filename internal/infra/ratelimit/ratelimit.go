// Package ratelimit keeps one token bucket per user.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTracked bounds the limiter map; past it the map is reset.
const maxTracked = 10000

type Limiter struct {
	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// PerMinute allows n events per minute per user with a burst of n. A non-positive n
// disables limiting.
func PerMinute(n int) *Limiter {
	l := &Limiter{limiters: make(map[int64]*rate.Limiter), limit: rate.Inf, burst: 1}

	if n > 0 {
		l.limit = rate.Every(time.Minute / time.Duration(n))
		l.burst = n
	}

	return l
}

func (l *Limiter) get(userID int64) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[userID]
	if !ok {
		if len(l.limiters) >= maxTracked {
			l.limiters = make(map[int64]*rate.Limiter)
		}

		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = lim
	}

	return lim
}

func (l *Limiter) Allow(userID int64) bool {
	return l.get(userID).Allow()
}
