package gateway

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is the shared scheduling gate every chat call funnels through,
// regardless of provider: the process has its own outbound quota. It enforces
// two constraints together: at most maxConcurrent calls in flight and at
// least minSpacing between successive dispatch starts.
//
// Callers must Release once the provider call returns; the slot is never held
// across backoff sleeps, which happen outside the limiter.
type RateLimiter struct {
	slots chan struct{}
	clock Clock

	mu         sync.Mutex
	spacing    time.Duration
	nextLaunch time.Time
}

// NewRateLimiter creates a limiter with the given bounds. Both bounds are
// fixed for the limiter's lifetime.
func NewRateLimiter(maxConcurrent int, minSpacing time.Duration, clock Clock) *RateLimiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &RateLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		spacing: minSpacing,
		clock:   clock,
	}
}

// Acquire blocks until a concurrency slot is free and the spacing constraint
// allows a new dispatch, or until ctx expires. On success the caller owns a
// slot and must Release it when the call completes.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	// Reserve a dispatch time under the lock, then wait for it outside the
	// lock. Reservations are handed out in arrival order, so no two
	// dispatches start closer than the spacing bound.
	l.mu.Lock()
	now := l.clock.Now()
	launch := l.nextLaunch
	if launch.Before(now) {
		launch = now
	}
	l.nextLaunch = launch.Add(l.spacing)
	l.mu.Unlock()

	if wait := launch.Sub(now); wait > 0 {
		if err := l.clock.Sleep(ctx, wait); err != nil {
			l.Release()
			return err
		}
	}

	return nil
}

// Release frees the concurrency slot taken by Acquire
func (l *RateLimiter) Release() {
	select {
	case <-l.slots:
	default:
		// Release without Acquire is a programming error; dropping it keeps
		// the in-flight count from going negative.
	}
}

// InFlight reports the number of currently held slots, for diagnostics
func (l *RateLimiter) InFlight() int {
	return len(l.slots)
}
