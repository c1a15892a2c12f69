package ratelimit

import (
	"context"
	"sync"
)

// Estimate carries the cost inputs for one request's admission.
//
// Missing token estimates are simply zero: the request then reserves no
// token capacity up front and its windows are reconciled once actual
// counts are known.
type Estimate struct {
	// RequestID keys the reservation for later adjustment and release.
	RequestID string

	// InputTokens is the estimated input (prompt) token count.
	InputTokens int

	// OutputTokens is the estimated output (completion) token count.
	OutputTokens int
}

// reservation records one limiter hold for an in-flight request.
type reservation struct {
	limiter Limiter
	cost    int
}

// Chain composes the ordered limiters configured for one model and enforces
// all-or-nothing admission: a request holds every limiter or none.
//
// Admission is serialized by the owning queue's single worker, so two
// AcquireAll calls on the same chain never interleave and sequential
// acquisition cannot deadlock. The in-flight reservation table is still
// guarded by a mutex because UpdateUsage may be called from any goroutine.
type Chain struct {
	limiters []Limiter

	mu       sync.Mutex
	inflight map[string][]reservation
}

// NewChain constructs a chain from the ordered limiter configurations.
// An empty list is legal and admits every request immediately.
func NewChain(cfgs []Config) (*Chain, error) {
	limiters := make([]Limiter, 0, len(cfgs))
	for _, cfg := range cfgs {
		l, err := New(cfg)
		if err != nil {
			return nil, err
		}
		limiters = append(limiters, l)
	}
	return &Chain{
		limiters: limiters,
		inflight: make(map[string][]reservation),
	}, nil
}

// Len returns the number of limiters in the chain.
func (c *Chain) Len() int {
	return len(c.limiters)
}

// InFlight returns the number of requests currently holding reservations.
func (c *Chain) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// AcquireAll admits the request on every limiter in configured order,
// blocking on each until it has capacity. If any acquisition fails or ctx is
// cancelled mid-way, every already-acquired limiter is released in reverse
// order and the request holds nothing.
//
// A request whose projected cost exceeds any single limiter's limit is
// rejected with a *CostError before any blocking, since waiting could never
// admit it.
func (c *Chain) AcquireAll(ctx context.Context, est Estimate) error {
	// Feasibility first: never start a wait that cannot end.
	for _, l := range c.limiters {
		if cost := costFor(l.Type(), est); cost > l.Snapshot().Limit {
			return &CostError{Type: l.Type(), Limit: l.Snapshot().Limit, Cost: cost}
		}
	}

	acquired := make([]reservation, 0, len(c.limiters))
	for _, l := range c.limiters {
		cost := costFor(l.Type(), est)
		if err := l.Acquire(ctx, est.RequestID, cost); err != nil {
			c.rollback(est.RequestID, acquired)
			return err
		}
		acquired = append(acquired, reservation{limiter: l, cost: cost})
	}

	c.mu.Lock()
	c.inflight[est.RequestID] = acquired
	c.mu.Unlock()
	return nil
}

// TryAcquireAll attempts admission without blocking. On any refusal the
// already-acquired limiters are released and false is returned.
func (c *Chain) TryAcquireAll(est Estimate) bool {
	acquired := make([]reservation, 0, len(c.limiters))
	for _, l := range c.limiters {
		cost := costFor(l.Type(), est)
		if !l.TryAcquire(est.RequestID, cost) {
			c.rollback(est.RequestID, acquired)
			return false
		}
		acquired = append(acquired, reservation{limiter: l, cost: cost})
	}

	c.mu.Lock()
	c.inflight[est.RequestID] = acquired
	c.mu.Unlock()
	return true
}

// UpdateUsage reconciles the request's token reservations against actual
// post-processing counts. Each token limiter's recorded cost is replaced
// with the dimensional actual; count and concurrency limiters are untouched.
//
// The call is idempotent and tolerates late arrival: adjusting an unknown or
// already-expired reservation is a no-op, so it is safe to call after the
// response has been published.
func (c *Chain) UpdateUsage(requestID string, actualInput, actualOutput int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range c.limiters {
		adj, ok := l.(Adjuster)
		if !ok {
			continue
		}

		var actual int
		switch l.Type() {
		case TPM, TPD:
			actual = actualInput + actualOutput
		case ITPM:
			actual = actualInput
		case OTPM:
			actual = actualOutput
		default:
			continue
		}
		adj.Adjust(requestID, actual)
	}
}

// ReleaseAll ends the request's hold on the chain. Concurrency slots are
// returned; windowed reservations stay recorded so that usage keeps counting
// against the window until it ages out.
func (c *Chain) ReleaseAll(requestID string) {
	c.mu.Lock()
	held := c.inflight[requestID]
	delete(c.inflight, requestID)
	c.mu.Unlock()

	for i := len(held) - 1; i >= 0; i-- {
		if held[i].limiter.Type() == Concurrent {
			held[i].limiter.Release(requestID, held[i].cost)
		}
	}
}

// Snapshot reports the current state of every limiter in configured order.
func (c *Chain) Snapshot() []Snapshot {
	snaps := make([]Snapshot, len(c.limiters))
	for i, l := range c.limiters {
		snaps[i] = l.Snapshot()
	}
	return snaps
}

// rollback undoes partially acquired limiters in reverse order. Token
// windows drop the reservation entirely; request windows are irreversible
// and keep their admission.
func (c *Chain) rollback(requestID string, acquired []reservation) {
	for i := len(acquired) - 1; i >= 0; i-- {
		acquired[i].limiter.Release(requestID, acquired[i].cost)
	}
}

// costFor projects the request's cost vector onto one limiter dimension.
func costFor(typ LimitType, est Estimate) int {
	switch typ {
	case TPM, TPD:
		return est.InputTokens + est.OutputTokens
	case ITPM:
		return est.InputTokens
	case OTPM:
		return est.OutputTokens
	default:
		return 1
	}
}
