package ratelimit

import (
	"context"
)

// ConcurrentLimiter limits the number of simultaneous in-flight requests.
//
// This is a counting semaphore built on a buffered channel, which gives a
// context-aware blocking Acquire for free. Unlike the windowed limiters,
// every successful Acquire must be paired with a Release.
//
// # Thread Safety
//
// ConcurrentLimiter is thread-safe; the channel is the only shared state.
type ConcurrentLimiter struct {
	limit int
	slots chan struct{}
}

func newConcurrent(limit int) *ConcurrentLimiter {
	return &ConcurrentLimiter{
		limit: limit,
		slots: make(chan struct{}, limit),
	}
}

// Type returns Concurrent.
func (cl *ConcurrentLimiter) Type() LimitType {
	return Concurrent
}

// TryAcquire attempts to take cost slots without blocking.
func (cl *ConcurrentLimiter) TryAcquire(id string, cost int) bool {
	if cost > cl.limit {
		return false
	}
	taken := 0
	for taken < cost {
		select {
		case cl.slots <- struct{}{}:
			taken++
		default:
			// Not enough free slots; undo the partial take.
			for i := 0; i < taken; i++ {
				<-cl.slots
			}
			return false
		}
	}
	return true
}

// Acquire blocks until cost slots are free, then takes them. On context
// cancellation any partially taken slots are returned.
func (cl *ConcurrentLimiter) Acquire(ctx context.Context, id string, cost int) error {
	if cost > cl.limit {
		return &CostError{Type: Concurrent, Limit: cl.limit, Cost: cost}
	}

	for taken := 0; taken < cost; taken++ {
		select {
		case cl.slots <- struct{}{}:
		case <-ctx.Done():
			for i := 0; i < taken; i++ {
				<-cl.slots
			}
			return ctx.Err()
		}
	}
	return nil
}

// Release returns cost slots. It must be called exactly once per successful
// Acquire.
func (cl *ConcurrentLimiter) Release(id string, cost int) {
	for i := 0; i < cost; i++ {
		select {
		case <-cl.slots:
		default:
			// More releases than acquires; ignore the excess.
			return
		}
	}
}

// Usage returns the number of slots currently held.
func (cl *ConcurrentLimiter) Usage() int {
	return len(cl.slots)
}

// Capacity returns the number of free slots.
func (cl *ConcurrentLimiter) Capacity() int {
	return cl.limit - len(cl.slots)
}

// Snapshot returns a point-in-time observation of the limiter.
func (cl *ConcurrentLimiter) Snapshot() Snapshot {
	usage := len(cl.slots)
	return Snapshot{
		Type:     Concurrent,
		Limit:    cl.limit,
		Usage:    usage,
		Capacity: cl.limit - usage,
	}
}
