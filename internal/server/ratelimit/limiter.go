// Package ratelimit provides fixed-window counters keyed by arbitrary
// strings, typically "ip|route". The in-memory limiter suits one process;
// the Redis limiter shares state between instances.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter counts events per key within a fixed window that starts at the
// first event for that key.
type Limiter interface {
	// Hit records one event and returns the count in the current window.
	Hit(ctx context.Context, key string) (int, error)
	Count(ctx context.Context, key string) (int, error)
	Reset(ctx context.Context, key string) error
}

// Key joins the parts of a limiter key.
func Key(parts ...string) string {
	n := 0
	for _, p := range parts {
		n += len(p) + 1
	}
	b := make([]byte, 0, n)
	for i, p := range parts {
		if i > 0 {
			b = append(b, '|')
		}
		b = append(b, p...)
	}
	return string(b)
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps windows in a mutex-guarded map.
type MemoryLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	entries map[string]*window
	hits    int
}

const pruneEvery = 1024

func NewMemoryLimiter(w time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		window:  w,
		now:     time.Now,
		entries: make(map[string]*window),
	}
}

// WithClock replaces the time source; tests use it to step over windows.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Hit(_ context.Context, key string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.hits++
	if l.hits%pruneEvery == 0 {
		l.prune(now)
	}

	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = &window{resetAt: now.Add(l.window)}
		l.entries[key] = e
	}
	e.count++
	return e.count, nil
}

func (l *MemoryLimiter) Count(_ context.Context, key string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || !l.now().Before(e.resetAt) {
		return 0, nil
	}
	return e.count, nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.entries, key)
	return nil
}

func (l *MemoryLimiter) prune(now time.Time) {
	for k, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, k)
		}
	}
}
