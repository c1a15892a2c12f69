package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Manager routes requests to per-model queues.
//
// The manager owns the model id → queue mapping. Registration constructs a
// limiter chain and queue per model; submission looks up the queue and
// delegates. All bookkeeping outside shutdown is non-blocking.
//
// A process-global instance is available through Default for applications
// that want singleton-style discovery, but nothing depends on it: any
// number of managers can coexist.
type Manager[P, T any] struct {
	mu     sync.RWMutex
	queues map[string]*Queue[P, T]
	opts   Options
}

// NewManager creates a manager with no logging or metrics.
func NewManager[P, T any]() *Manager[P, T] {
	return NewManagerWith[P, T](Options{})
}

// NewManagerWith creates a manager whose queues share the given options.
func NewManagerWith[P, T any](opts Options) *Manager[P, T] {
	return &Manager[P, T]{
		queues: make(map[string]*Queue[P, T]),
		opts:   opts,
	}
}

// Register creates and starts a queue for the model. It fails with
// ErrDuplicateModel if the model id already has a queue, and with
// ErrInvalidConfiguration for structurally invalid configuration.
func (m *Manager[P, T]) Register(cfg ModelConfig, processor Processor[P, T]) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.queues[cfg.ModelID]; exists {
		return fmt.Errorf("model %q: %w", cfg.ModelID, ErrDuplicateModel)
	}

	q, err := NewQueue(cfg, processor, m.opts)
	if err != nil {
		return err
	}
	m.queues[cfg.ModelID] = q

	m.opts.Logger.Info("model registered",
		"model_id", cfg.ModelID, "limiters", len(cfg.Limiters))
	return nil
}

// RegisterAll registers each configuration with the shared processor,
// skipping models that already have a queue. Registration is not atomic:
// a failure leaves earlier registrations in place.
func (m *Manager[P, T]) RegisterAll(cfgs []ModelConfig, processor Processor[P, T]) error {
	for _, cfg := range cfgs {
		err := m.Register(cfg, processor)
		if err != nil && !errors.Is(err, ErrDuplicateModel) {
			return err
		}
	}
	return nil
}

// Submit routes the request to its model's queue. With WaitForCompletion
// set (the default) it blocks until the terminal response; otherwise it
// returns a pending response immediately and the outcome is retrievable
// via GetStatus.
func (m *Manager[P, T]) Submit(ctx context.Context, req *Request[P]) (*Response[T], error) {
	q, err := m.queue(req.ModelID)
	if err != nil {
		return nil, err
	}
	return q.Enqueue(ctx, req)
}

// GetStatus returns the request's current status or retained terminal
// response.
func (m *Manager[P, T]) GetStatus(modelID, requestID string) (*Response[T], error) {
	q, err := m.queue(modelID)
	if err != nil {
		return nil, err
	}
	return q.GetStatus(requestID)
}

// UpdateTokenUsage reconciles a request's token reservations against actual
// counts, for callers that learn usage out of band.
func (m *Manager[P, T]) UpdateTokenUsage(modelID, requestID string, actualInput, actualOutput int) error {
	q, err := m.queue(modelID)
	if err != nil {
		return err
	}
	return q.UpdateTokenUsage(requestID, actualInput, actualOutput)
}

// Info returns a point-in-time observation of one model's queue.
func (m *Manager[P, T]) Info(modelID string) (*QueueInfo, error) {
	q, err := m.queue(modelID)
	if err != nil {
		return nil, err
	}
	return q.Info(), nil
}

// InfoAll returns observations for every registered queue, keyed by model id.
func (m *Manager[P, T]) InfoAll() map[string]*QueueInfo {
	m.mu.RLock()
	queues := make([]*Queue[P, T], 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.mu.RUnlock()

	infos := make(map[string]*QueueInfo, len(queues))
	for _, q := range queues {
		infos[q.ModelID()] = q.Info()
	}
	return infos
}

// RegisteredModels returns the registered model ids in sorted order.
func (m *Manager[P, T]) RegisteredModels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.queues))
	for id := range m.queues {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PurgeTerminal drops retained terminal records older than the given time
// across all queues, returning the number removed.
func (m *Manager[P, T]) PurgeTerminal(olderThan time.Time) int {
	m.mu.RLock()
	queues := make([]*Queue[P, T], 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.mu.RUnlock()

	purged := 0
	for _, q := range queues {
		purged += q.PurgeTerminal(olderThan)
	}
	return purged
}

// ShutdownAll shuts down every queue concurrently and removes them from the
// manager. It returns once all queues have drained or ctx has expired; on
// expiry the remaining workers are cancelled and their pending requests are
// failed with a shutdown cause. The same model ids can be registered again
// afterwards.
func (m *Manager[P, T]) ShutdownAll(ctx context.Context) error {
	m.mu.Lock()
	queues := m.queues
	m.queues = make(map[string]*Queue[P, T])
	m.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, len(queues))
	i := 0
	for _, q := range queues {
		wg.Add(1)
		go func(idx int, q *Queue[P, T]) {
			defer wg.Done()
			errs[idx] = q.Shutdown(ctx)
		}(i, q)
		i++
	}
	wg.Wait()

	m.opts.Logger.Info("all queues shut down", "count", len(queues))
	return errors.Join(errs...)
}

// queue looks up the model's queue.
func (m *Manager[P, T]) queue(modelID string) (*Queue[P, T], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.queues[modelID]
	if !ok {
		return nil, fmt.Errorf("model %q: %w", modelID, ErrModelNotRegistered)
	}
	return q, nil
}

var (
	defaultMu      sync.Mutex
	defaultManager *Manager[any, any]
)

// Default returns the process-global manager, creating it on first use. It
// is a named convenience instance with untyped payloads; correctness never
// depends on it being the only manager.
func Default() *Manager[any, any] {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultManager == nil {
		defaultManager = NewManager[any, any]()
	}
	return defaultManager
}

// ResetDefault discards the process-global manager so the next Default call
// builds a fresh one. Intended for tests; production code should prefer
// Default().ShutdownAll.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultManager = nil
}
