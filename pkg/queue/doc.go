// Package queue provides rate-limited request scheduling for LLM provider APIs.
//
// # Overview
//
// The queue package is an in-process scheduler: applications register models
// with their provider-published limits, submit requests per model, and the
// scheduler admits each request only when every configured limit has
// capacity, then invokes a caller-supplied processor:
//
//   - Per-model FIFO queues, each drained by a single worker
//   - Composable rate limits (RPM, RPD, TPM, TPD, ITPM, OTPM, Concurrent)
//   - Estimated-vs-actual token reconciliation after processing
//   - Synchronous and fire-and-forget submission
//   - Graceful drain-then-stop shutdown with a caller deadline
//
// # Usage
//
//	processor := func(ctx context.Context, req *queue.Request[Prompt]) (Reply, error) {
//	    return callProvider(ctx, req.Params)
//	}
//
//	mgr := queue.NewManager[Prompt, Reply]()
//	err := mgr.Register(queue.ModelConfig{
//	    ModelID: "gpt-4",
//	    Limiters: []ratelimit.Config{
//	        {Type: ratelimit.RPM, Limit: 500},
//	        {Type: ratelimit.TPM, Limit: 30000},
//	        {Type: ratelimit.Concurrent, Limit: 5},
//	    },
//	}, processor)
//
//	req := queue.NewRequest("gpt-4", Prompt{Text: "hello"})
//	req.EstimatedInputTokens = 12
//	resp, err := mgr.Submit(ctx, req)
//
// # Ordering
//
// Per model, requests are admitted strictly in enqueue order: a request
// blocked on capacity does not yield its position to later, cheaper
// requests. Queues for different models are fully independent.
//
// # Cancellation
//
// Cancelling the context passed to Submit abandons the wait, not the work:
// the worker still processes the request, publishes a terminal response
// retrievable via GetStatus, and releases every limiter.
package queue
