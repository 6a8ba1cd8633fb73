package llm

import (
	"context"
	"sync"
	"time"
)

// rpsLimiter is a token bucket holding up to burst tokens and gaining one
// every interval. Tokens are refilled lazily from the elapsed time when a
// caller asks for one, so an idle limiter costs nothing. A nil limiter
// admits every request.
type rpsLimiter struct {
	interval time.Duration
	burst    float64
	now      func() time.Time

	mu     sync.Mutex
	tokens float64
	last   time.Time

	stopped  chan struct{}
	stopOnce sync.Once
}

// newRPSLimiter returns nil when rps <= 0. The bucket starts full.
func newRPSLimiter(rps float64, burst int) *rpsLimiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	interval := time.Duration(float64(time.Second) / rps)
	if interval <= 0 {
		interval = time.Millisecond
	}
	return &rpsLimiter{
		interval: interval,
		burst:    float64(burst),
		now:      time.Now,
		tokens:   float64(burst),
		last:     time.Now(),
		stopped:  make(chan struct{}),
	}
}

// reserve takes a token if one is available. Otherwise it returns how long
// until the next token lands.
func (l *rpsLimiter) reserve() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if elapsed := now.Sub(l.last); elapsed > 0 {
		l.tokens += float64(elapsed) / float64(l.interval)
		if l.tokens > l.burst {
			l.tokens = l.burst
		}
	}
	l.last = now
	if l.tokens >= 1 {
		l.tokens--
		return 0, true
	}
	return time.Duration((1 - l.tokens) * float64(l.interval)), false
}

// Acquire blocks until a token is taken, ctx ends or the limiter stops.
func (l *rpsLimiter) Acquire(ctx context.Context) error {
	if l == nil {
		return nil
	}
	for {
		wait, ok := l.reserve()
		if ok {
			return nil
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-l.stopped:
			t.Stop()
			return context.Canceled
		case <-t.C:
		}
	}
}

// Stop releases callers waiting for a token with context.Canceled. Idempotent.
func (l *rpsLimiter) Stop() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.stopped) })
}
