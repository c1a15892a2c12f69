// Package ratelimit provides the admission primitives for the request scheduler.
//
// # Overview
//
// The ratelimit package implements three limiter variants, each guarding one
// dimension of a provider's published limits:
//
//   - RequestWindow: count of admissions in a rolling time window (RPM, RPD)
//   - TokenWindow: sum of token cost in a rolling time window (TPM, TPD, ITPM, OTPM)
//   - Concurrent: maximum simultaneous in-flight requests
//
// All variants present the same capability surface through the Limiter
// interface: non-blocking TryAcquire, blocking context-aware Acquire,
// Release, and usage/capacity observation.
//
// # Chain
//
// A Chain composes the limiters configured for one model and enforces
// all-or-nothing admission: a request holds every limiter or none. The chain
// also reconciles estimated token costs against actual post-processing
// counts:
//
//	chain, _ := ratelimit.NewChain([]ratelimit.Config{
//	    {Type: ratelimit.RPM, Limit: 500},
//	    {Type: ratelimit.TPM, Limit: 30000},
//	    {Type: ratelimit.Concurrent, Limit: 5},
//	})
//
//	err := chain.AcquireAll(ctx, ratelimit.Estimate{
//	    RequestID:      id,
//	    InputTokens:    1200,
//	    OutputTokens:   400,
//	})
//	if err != nil {
//	    return err
//	}
//	defer chain.ReleaseAll(id)
//
//	// ... invoke the provider ...
//
//	chain.UpdateUsage(id, usage.InputTokens, usage.OutputTokens)
//
// # Blocking behavior
//
// Acquire does not reject when a window is full; it sleeps until enough
// capacity ages out and then admits. The only error paths are context
// cancellation and the configuration fault where a single request's cost
// exceeds a limiter's limit, which could never be admitted.
//
// # Thread Safety
//
// All limiters and the chain are safe for concurrent use. Each limiter
// carries its own mutex; the chain serializes its in-flight reservation
// table separately so that token reconciliation may be called from any
// goroutine while the owning worker blocks in Acquire.
package ratelimit
