package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mercator-hq/ganymede/pkg/queue/ratelimit"
)

// Status is the lifecycle state of a request.
type Status string

const (
	// StatusPending indicates the request is enqueued and not yet admitted.
	StatusPending Status = "pending"

	// StatusProcessing indicates the request holds all limiters and the
	// processor is running.
	StatusProcessing Status = "processing"

	// StatusCompleted indicates the processor returned a result.
	StatusCompleted Status = "completed"

	// StatusFailed indicates the processor returned an error, or the
	// request was failed by shutdown.
	StatusFailed Status = "failed"
)

// Terminal reports whether s is an absorbing state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Request is a unit of work submitted to a model's queue.
//
// The Params payload is opaque to the scheduler; only the processor
// interprets it. Token estimates are optional: zero means the request
// reserves no token capacity up front. The processor may set
// ActualInputTokens and ActualOutputTokens before returning, and the worker
// then reconciles the token windows against those counts.
type Request[P any] struct {
	// ID uniquely identifies the request. NewRequest generates one.
	ID string

	// ModelID names the registered model this request targets.
	ModelID string

	// Params is the caller-defined payload handed to the processor.
	Params P

	// EstimatedInputTokens is the expected input (prompt) token count.
	EstimatedInputTokens int

	// EstimatedOutputTokens is the expected output (completion) token count.
	EstimatedOutputTokens int

	// ActualInputTokens is the measured input token count, set by the
	// processor before returning.
	ActualInputTokens int

	// ActualOutputTokens is the measured output token count, set by the
	// processor before returning.
	ActualOutputTokens int

	// WaitForCompletion selects synchronous submission. When false, Submit
	// returns immediately with a pending response and the terminal
	// response is retained for polling via GetStatus.
	WaitForCompletion bool

	// CreatedAt is the request construction time.
	CreatedAt time.Time
}

// NewRequest constructs a request for the given model with a generated id.
// Requests wait for completion by default.
func NewRequest[P any](modelID string, params P) *Request[P] {
	return &Request[P]{
		ID:                uuid.NewString(),
		ModelID:           modelID,
		Params:            params,
		WaitForCompletion: true,
		CreatedAt:         time.Now(),
	}
}

// Validate checks the request for structural faults.
func (r *Request[P]) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty request id", ErrInvalidConfiguration)
	}
	if r.ModelID == "" {
		return fmt.Errorf("%w: empty model id", ErrInvalidConfiguration)
	}
	if r.EstimatedInputTokens < 0 || r.EstimatedOutputTokens < 0 ||
		r.ActualInputTokens < 0 || r.ActualOutputTokens < 0 {
		return fmt.Errorf("%w: negative token count", ErrInvalidConfiguration)
	}
	return nil
}

// Response is the outcome of a request.
//
// Completed responses carry Result and no Error; failed responses carry
// Error and a zero Result. A pending response is returned only by
// fire-and-forget submission before the request terminates.
type Response[T any] struct {
	// RequestID is the id of the originating request.
	RequestID string

	// ModelID names the model that handled the request.
	ModelID string

	// Status is the request's status at response time.
	Status Status

	// Result is the processor's result. Meaningful only when Status is
	// StatusCompleted.
	Result T

	// Error is the failure description. Non-empty only when Status is
	// StatusFailed.
	Error string

	// ProcessingTime is the processor's wall-clock duration.
	ProcessingTime time.Duration

	// InputTokens is the actual input token count, when reported.
	InputTokens int

	// OutputTokens is the actual output token count, when reported.
	OutputTokens int

	// CreatedAt is the originating request's creation time.
	CreatedAt time.Time
}

// Processor is the caller-supplied function that performs the provider call
// for one request. It signals failure by returning an error; the worker
// translates that into a failed response. The processor may set the
// request's actual token counts before returning to drive reconciliation.
type Processor[P, T any] func(ctx context.Context, req *Request[P]) (T, error)

// ModelConfig describes one model registration: the model id and the
// ordered limiters guarding it. Zero limiters is legal and means
// unconstrained; duplicate limiter types are additive (both apply).
type ModelConfig struct {
	// ModelID uniquely identifies the model.
	ModelID string

	// Limiters is the ordered limiter list for the model's chain.
	Limiters []ratelimit.Config
}

// Validate checks the model configuration for structural faults.
func (c ModelConfig) Validate() error {
	if c.ModelID == "" {
		return fmt.Errorf("%w: empty model id", ErrInvalidConfiguration)
	}
	for _, lc := range c.Limiters {
		if err := lc.Validate(); err != nil {
			return fmt.Errorf("%w: model %q: %w", ErrInvalidConfiguration, c.ModelID, err)
		}
	}
	return nil
}

// QueueInfo is a point-in-time observation of one model's queue.
type QueueInfo struct {
	// ModelID names the queue's model.
	ModelID string

	// Depth is the number of requests waiting for admission.
	Depth int

	// InFlight is the number of requests currently holding the chain.
	InFlight int

	// Retained is the number of records still observable via GetStatus.
	Retained int

	// Limiters reports each chain member's current state in configured
	// order.
	Limiters []ratelimit.Snapshot
}
