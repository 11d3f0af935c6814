package ratelimit

import (
	"sync"
	"time"
)

// window is the per-identity admission state: recent admission times plus
// an optional punitive block.
type window struct {
	hits       []time.Time
	blockUntil time.Time
}

// Limiter is a sliding-window admission controller. Exceeding the window
// limit once does not just throttle the next request: it blocks the
// identity outright for the configured block duration.
type Limiter struct {
	maxRequests int
	window      time.Duration
	block       time.Duration

	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

func New(maxRequests int, windowDur, blockDur time.Duration) *Limiter {
	return &Limiter{
		maxRequests: maxRequests,
		window:      windowDur,
		block:       blockDur,
		now:         time.Now,
		windows:     make(map[string]*window),
	}
}

// Admit decides whether a request from identity may proceed. When denied,
// retryAfter is how long the caller should wait before trying again.
func (l *Limiter) Admit(identity string) (allowed bool, retryAfter time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identity]
	if !ok {
		w = &window{}
		l.windows[identity] = w
	}

	if w.blockUntil.After(now) {
		return false, w.blockUntil.Sub(now)
	}

	cutoff := now.Add(-l.window)
	kept := w.hits[:0]
	for _, t := range w.hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	w.hits = kept

	if len(w.hits) >= l.maxRequests {
		w.blockUntil = now.Add(l.block)
		return false, l.block
	}

	w.hits = append(w.hits, now)
	return true, 0
}
