package rate

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter counts per key in process. Windows are aligned to the
// window size so every replica-local counter resets on the same boundary.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]window
	swept   time.Time
}

type window struct {
	start time.Time
	count int
}

func NewMemory(limit int, size time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  size,
		windows: map[string]window{},
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, now time.Time) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.window)
	if start.After(l.swept) {
		for k, w := range l.windows {
			if w.start.Before(start) {
				delete(l.windows, k)
			}
		}
		l.swept = start
	}

	w := l.windows[key]
	if !w.start.Equal(start) {
		w = window{start: start}
	}
	reset := start.Add(l.window).Sub(now)

	if w.count >= l.limit {
		return Decision{Limit: l.limit, RetryAfter: reset}, nil
	}
	w.count++
	l.windows[key] = w
	return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - w.count}, nil
}
