// Package tokens provides token estimation for scheduler submissions.
//
// Token windows admit on estimated cost, so a good estimate up front means
// less reconciliation churn later. This package offers two estimators:
//
//   - SimpleEstimator: character-based with model-specific ratios; fast,
//     within a few percent for typical prompts
//   - EncoderEstimator: exact BPE counting via tiktoken; slower, byte-exact
//     for models whose encoding tiktoken knows
//
// # Usage
//
//	est := tokens.NewSimpleEstimator(nil)
//
//	req := queue.NewRequest("gpt-4", prompt)
//	req.EstimatedInputTokens, _ = est.EstimateText(prompt.Text, "gpt-4")
//	resp, err := mgr.Submit(ctx, req)
//
// The scheduler never calls an estimator implicitly; estimation is always
// the submitter's choice.
package tokens
