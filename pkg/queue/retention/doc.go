// Package retention prunes retained fire-and-forget responses.
//
// # Retention Policy
//
// Terminal responses from fire-and-forget submissions stay observable via
// GetStatus until something removes them. This package automatically purges
// records older than a configurable age:
//
//   - Configurable maximum age
//   - Scheduled pruning (cron expression)
//   - Manual pruning on demand
//
// # Basic Usage
//
//	pruner := retention.NewPruner(manager, &retention.Config{
//	    MaxAge:        time.Hour,
//	    PruneSchedule: "*/5 * * * *", // Every 5 minutes
//	})
//
//	if err := pruner.Start(ctx); err != nil {
//	    return err
//	}
//	defer pruner.Stop()
//
// # Manual Pruning
//
// You can also trigger pruning manually:
//
//	purged := pruner.Prune()
//	log.Printf("Purged %d retained responses", purged)
//
// # Retention Age
//
// The maximum age bounds how long a terminal response stays queryable:
//
//   - 0: Keep responses until shutdown (no pruning)
//   - time.Hour: Purge responses that terminated over an hour ago
//
// Pending and in-flight requests are never purged.
package retention
