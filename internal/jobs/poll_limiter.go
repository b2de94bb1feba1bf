package jobs

import (
	"sync"
	"time"
)

const (
	pollLimitWindow = 500 * time.Millisecond

	// Entries for jobs nobody polls anymore are swept once the map grows
	// past the threshold.
	pollStateTTL       = 30 * time.Minute
	pollSweepThreshold = 1024
)

type pollLimiter struct {
	mu      sync.Mutex
	lastHit map[string]time.Time
	now     func() time.Time
	window  time.Duration
}

func newPollLimiter(window time.Duration, now func() time.Time) *pollLimiter {
	if now == nil {
		now = time.Now
	}
	if window <= 0 {
		window = pollLimitWindow
	}
	return &pollLimiter{
		lastHit: make(map[string]time.Time),
		now:     now,
		window:  window,
	}
}

func (l *pollLimiter) Allow(jobID string) bool {
	if l == nil {
		return true
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.lastHit[jobID]; ok {
		if now.Sub(last) < l.window {
			return false
		}
	}
	if len(l.lastHit) >= pollSweepThreshold {
		l.sweepLocked(now)
	}
	l.lastHit[jobID] = now
	return true
}

func (l *pollLimiter) sweepLocked(now time.Time) {
	for id, last := range l.lastHit {
		if now.Sub(last) > pollStateTTL {
			delete(l.lastHit, id)
		}
	}
}

func (l *pollLimiter) Forget(jobID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.lastHit, jobID)
}

func (l *pollLimiter) RetryAfterSeconds() int {
	window := pollLimitWindow
	if l != nil {
		window = l.window
	}
	secs := int(window.Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}
