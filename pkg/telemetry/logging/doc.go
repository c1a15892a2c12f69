// Package logging provides structured logging for the scheduler.
//
// The logging package wraps Go's standard log/slog package to provide:
//
//   - Level and format parsing from plain configuration strings
//   - JSON and text output handlers
//   - Context-scoped fields (request id, model id)
//   - A no-op logger for callers that do not want log output
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	})
//	if err != nil {
//	    return err
//	}
//
//	logger.Info("model registered", "model_id", "gpt-4", "limiters", 3)
//
// Context fields attached with WithRequestID and WithModelID are picked up
// by the *Context logging variants:
//
//	ctx = logging.WithRequestID(ctx, req.ID)
//	logger.InfoContext(ctx, "request admitted")
//
// # No-op logger
//
// Library components accept a *Logger and treat nil as "no logging". Nop()
// returns a non-nil logger that discards everything, for callers that want
// to pass a logger unconditionally.
package logging
