package queue

import (
	"context"
	"sync"
)

// rendezvous is the single-use synchronization point through which the
// worker delivers a terminal response. The producer publishes exactly once;
// readers may arrive before or after publication, and any number of readers
// may observe the published response.
type rendezvous[T any] struct {
	done chan struct{}
	once sync.Once
	resp *Response[T]
}

func newRendezvous[T any]() *rendezvous[T] {
	return &rendezvous[T]{done: make(chan struct{})}
}

// publish stores the terminal response and wakes all waiters. Subsequent
// calls are ignored, preserving exactly-once delivery.
func (r *rendezvous[T]) publish(resp *Response[T]) {
	r.once.Do(func() {
		r.resp = resp
		close(r.done)
	})
}

// wait blocks until publication or context cancellation.
func (r *rendezvous[T]) wait(ctx context.Context) (*Response[T], error) {
	select {
	case <-r.done:
		return r.resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// poll returns the published response without blocking.
func (r *rendezvous[T]) poll() (*Response[T], bool) {
	select {
	case <-r.done:
		return r.resp, true
	default:
		return nil, false
	}
}
