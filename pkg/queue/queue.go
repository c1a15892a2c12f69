package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mercator-hq/ganymede/pkg/queue/ratelimit"
	"mercator-hq/ganymede/pkg/telemetry/logging"
)

// Options carries optional collaborators for queues and managers. The zero
// value is valid: no logging, no metrics.
type Options struct {
	// Logger receives scheduler log output. Nil disables logging.
	Logger *logging.Logger

	// Metrics receives scheduler metrics. Nil disables metrics.
	Metrics *Metrics
}

// record tracks one request from enqueue until it is no longer observable.
// status and resp are guarded by the owning queue's mutex; the rendezvous
// carries the terminal response to waiters.
type record[P, T any] struct {
	req        *Request[P]
	status     Status
	resp       *Response[T]
	rz         *rendezvous[T]
	enqueuedAt time.Time
	finishedAt time.Time
}

// Queue schedules requests for a single model.
//
// A queue owns a FIFO of pending requests, the model's limiter chain, and
// one worker goroutine that drains the FIFO: for each request it acquires
// every limiter, invokes the processor, reconciles token usage, releases
// the chain, and publishes the terminal response.
type Queue[P, T any] struct {
	modelID   string
	chain     *ratelimit.Chain
	processor Processor[P, T]
	logger    *logging.Logger
	metrics   *Metrics

	mu      sync.Mutex
	cond    *sync.Cond
	fifo    []*record[P, T]
	records map[string]*record[P, T]
	closed  bool

	workerCtx  context.Context
	cancel     context.CancelFunc
	workerDone chan struct{}
}

// NewQueue constructs a queue for the given model and starts its worker.
func NewQueue[P, T any](cfg ModelConfig, processor Processor[P, T], opts Options) (*Queue[P, T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if processor == nil {
		return nil, fmt.Errorf("%w: nil processor", ErrInvalidConfiguration)
	}

	chain, err := ratelimit.NewChain(cfg.Limiters)
	if err != nil {
		return nil, fmt.Errorf("model %q: %w", cfg.ModelID, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue[P, T]{
		modelID:    cfg.ModelID,
		chain:      chain,
		processor:  processor,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		records:    make(map[string]*record[P, T]),
		workerCtx:  ctx,
		cancel:     cancel,
		workerDone: make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)

	go q.work()
	return q, nil
}

// ModelID returns the model this queue schedules for.
func (q *Queue[P, T]) ModelID() string {
	return q.modelID
}

// Enqueue validates the request, appends it to the FIFO, and either waits
// for the terminal response (WaitForCompletion) or returns a pending
// response immediately.
//
// Cancelling ctx while waiting abandons the wait only: the worker still
// processes the request and the terminal response stays retrievable via
// GetStatus.
func (q *Queue[P, T]) Enqueue(ctx context.Context, req *Request[P]) (*Response[T], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.ModelID != q.modelID {
		return nil, fmt.Errorf("%w: request model %q does not match queue model %q",
			ErrInvalidConfiguration, req.ModelID, q.modelID)
	}

	rec := &record[P, T]{
		req:        req,
		status:     StatusPending,
		rz:         newRendezvous[T](),
		enqueuedAt: time.Now(),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, fmt.Errorf("model %q: %w", q.modelID, ErrQueueShutdown)
	}
	if _, exists := q.records[req.ID]; exists {
		q.mu.Unlock()
		return nil, fmt.Errorf("%w: duplicate request id %q", ErrInvalidConfiguration, req.ID)
	}
	q.records[req.ID] = rec
	q.fifo = append(q.fifo, rec)
	depth := len(q.fifo)
	q.cond.Signal()
	q.mu.Unlock()

	q.metrics.observeEnqueue(q.modelID, depth)
	q.logger.Debug("request enqueued",
		"model_id", q.modelID, "request_id", req.ID, "depth", depth)

	if !req.WaitForCompletion {
		return &Response[T]{
			RequestID: req.ID,
			ModelID:   req.ModelID,
			Status:    StatusPending,
			CreatedAt: req.CreatedAt,
		}, nil
	}

	resp, err := rec.rz.wait(ctx)
	if err != nil {
		// Waiter walked away; the worker keeps going and the record stays
		// observable via GetStatus.
		return nil, err
	}
	q.forget(req.ID)
	return resp, nil
}

// GetStatus returns the request's current status, or its retained terminal
// response if it has finished. Records pruned on delivery or by retention
// report ErrRequestNotFound.
func (q *Queue[P, T]) GetStatus(requestID string) (*Response[T], error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rec, ok := q.records[requestID]
	if !ok {
		return nil, fmt.Errorf("request %q: %w", requestID, ErrRequestNotFound)
	}
	if rec.resp != nil {
		cp := *rec.resp
		return &cp, nil
	}
	return &Response[T]{
		RequestID: rec.req.ID,
		ModelID:   q.modelID,
		Status:    rec.status,
		CreatedAt: rec.req.CreatedAt,
	}, nil
}

// UpdateTokenUsage reconciles the request's token reservations against
// actual counts. Valid any time after the processor returns; calling for an
// unknown or already-expired request id is a harmless no-op.
func (q *Queue[P, T]) UpdateTokenUsage(requestID string, actualInput, actualOutput int) error {
	if actualInput < 0 || actualOutput < 0 {
		return fmt.Errorf("%w: negative token count", ErrInvalidConfiguration)
	}
	q.chain.UpdateUsage(requestID, actualInput, actualOutput)
	return nil
}

// Info returns a point-in-time observation of the queue and its chain.
func (q *Queue[P, T]) Info() *QueueInfo {
	q.mu.Lock()
	depth := len(q.fifo)
	retained := len(q.records)
	q.mu.Unlock()

	return &QueueInfo{
		ModelID:  q.modelID,
		Depth:    depth,
		InFlight: q.chain.InFlight(),
		Retained: retained,
		Limiters: q.chain.Snapshot(),
	}
}

// PurgeTerminal drops retained terminal records that finished before the
// given time, returning the number removed. In-flight and pending records
// are never touched.
func (q *Queue[P, T]) PurgeTerminal(olderThan time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	purged := 0
	for id, rec := range q.records {
		if rec.status.Terminal() && rec.finishedAt.Before(olderThan) {
			delete(q.records, id)
			purged++
		}
	}
	return purged
}

// Shutdown gracefully stops the queue: new enqueues are refused, the FIFO
// drains, and the worker exits. If ctx expires before the drain completes,
// the worker is cancelled: the processor's context is cancelled, and every
// request still queued or waiting for admission is failed with
// ErrQueueShutdown. The request inside the processor keeps whatever outcome
// the processor returns. Shutdown returns only after the worker has exited.
func (q *Queue[P, T]) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	select {
	case <-q.workerDone:
		return nil
	case <-ctx.Done():
		q.cancel()
		<-q.workerDone
		return ctx.Err()
	}
}

// work is the queue's single worker loop. It exits when shutdown has begun
// and the FIFO is empty.
func (q *Queue[P, T]) work() {
	defer close(q.workerDone)

	for {
		q.mu.Lock()
		for len(q.fifo) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.fifo) == 0 {
			q.mu.Unlock()
			return
		}
		rec := q.fifo[0]
		q.fifo = q.fifo[1:]
		depth := len(q.fifo)
		q.mu.Unlock()

		q.metrics.setDepth(q.modelID, depth)

		if q.workerCtx.Err() != nil {
			q.abort(rec)
			continue
		}
		q.process(rec)
	}
}

// process drives one request through admission, the processor, token
// reconciliation, and release.
func (q *Queue[P, T]) process(rec *record[P, T]) {
	req := rec.req

	waitStart := time.Now()
	err := q.chain.AcquireAll(q.workerCtx, ratelimit.Estimate{
		RequestID:    req.ID,
		InputTokens:  req.EstimatedInputTokens,
		OutputTokens: req.EstimatedOutputTokens,
	})
	if err != nil {
		// Shutdown cancellation, or a cost no limiter could ever admit.
		// Nothing is held: AcquireAll rolls back partial holds itself.
		if q.workerCtx.Err() != nil {
			err = fmt.Errorf("model %q: %w", q.modelID, ErrQueueShutdown)
		}
		q.logger.Warn("admission failed",
			"model_id", q.modelID, "request_id", req.ID, "error", err.Error())
		q.finish(rec, q.failureResponse(req, err, 0))
		return
	}
	q.metrics.observeAdmissionWait(q.modelID, time.Since(waitStart))
	q.metrics.setInFlight(q.modelID, q.chain.InFlight())

	q.mu.Lock()
	rec.status = StatusProcessing
	q.mu.Unlock()

	start := time.Now()
	result, perr := q.invoke(req)
	elapsed := time.Since(start)

	if req.ActualInputTokens > 0 || req.ActualOutputTokens > 0 {
		q.chain.UpdateUsage(req.ID, req.ActualInputTokens, req.ActualOutputTokens)
	}
	q.chain.ReleaseAll(req.ID)
	q.metrics.setInFlight(q.modelID, q.chain.InFlight())

	var resp *Response[T]
	if perr != nil {
		resp = q.failureResponse(req, perr, elapsed)
	} else {
		resp = &Response[T]{
			RequestID:      req.ID,
			ModelID:        req.ModelID,
			Status:         StatusCompleted,
			Result:         result,
			ProcessingTime: elapsed,
			InputTokens:    req.ActualInputTokens,
			OutputTokens:   req.ActualOutputTokens,
			CreatedAt:      req.CreatedAt,
		}
	}
	q.finish(rec, resp)
}

// invoke runs the processor, converting a panic into an error so that one
// misbehaving request cannot kill the worker.
func (q *Queue[P, T]) invoke(req *Request[P]) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()
	return q.processor(q.workerCtx, req)
}

// abort fails a request that will never be processed because the worker was
// cancelled during shutdown.
func (q *Queue[P, T]) abort(rec *record[P, T]) {
	err := fmt.Errorf("model %q: %w", q.modelID, ErrQueueShutdown)
	q.finish(rec, q.failureResponse(rec.req, err, 0))
}

// finish records the terminal response and publishes it exactly once.
func (q *Queue[P, T]) finish(rec *record[P, T], resp *Response[T]) {
	q.mu.Lock()
	rec.status = resp.Status
	rec.resp = resp
	rec.finishedAt = time.Now()
	q.mu.Unlock()

	q.metrics.observeComplete(q.modelID, resp.Status, resp.InputTokens, resp.OutputTokens, resp.ProcessingTime)
	q.logger.Debug("request finished",
		"model_id", q.modelID, "request_id", resp.RequestID,
		"status", string(resp.Status), "duration", resp.ProcessingTime)

	rec.rz.publish(resp)
}

// failureResponse builds a failed response carrying the error's string form.
func (q *Queue[P, T]) failureResponse(req *Request[P], err error, elapsed time.Duration) *Response[T] {
	return &Response[T]{
		RequestID:      req.ID,
		ModelID:        req.ModelID,
		Status:         StatusFailed,
		Error:          err.Error(),
		ProcessingTime: elapsed,
		InputTokens:    req.ActualInputTokens,
		OutputTokens:   req.ActualOutputTokens,
		CreatedAt:      req.CreatedAt,
	}
}

// forget drops a record after its response was delivered to a waiter.
func (q *Queue[P, T]) forget(requestID string) {
	q.mu.Lock()
	delete(q.records, requestID)
	q.mu.Unlock()
}
