package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/ganymede/pkg/telemetry/logging"
)

// Target is the store whose retained terminal responses are pruned. Both
// queue.Queue and queue.Manager satisfy it.
type Target interface {
	// PurgeTerminal removes terminal records that finished before the
	// given time and returns how many were removed.
	PurgeTerminal(olderThan time.Time) int
}

// Config contains configuration for the retention pruner.
type Config struct {
	// MaxAge is how long a terminal response stays queryable.
	// 0 means keep responses until shutdown (no pruning).
	MaxAge time.Duration

	// PruneSchedule is a cron expression for scheduling pruning.
	// Example: "*/5 * * * *" (every 5 minutes). Empty disables the
	// schedule; Prune can still be called manually.
	PruneSchedule string

	// Logger receives pruning log output. Nil disables logging.
	Logger *logging.Logger
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAge:        time.Hour,
		PruneSchedule: "*/5 * * * *",
	}
}

// Pruner enforces the retention policy on retained responses.
type Pruner struct {
	target Target
	config *Config
	logger *logging.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewPruner creates a retention pruner for the given target.
func NewPruner(target Target, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	return &Pruner{
		target: target,
		config: config,
		logger: config.Logger,
		cron:   cron.New(),
	}
}

// Prune purges retained responses older than the configured age, returning
// the number removed. With MaxAge zero it does nothing.
func (p *Pruner) Prune() int {
	if p.config.MaxAge <= 0 {
		return 0
	}

	cutoff := time.Now().Add(-p.config.MaxAge)
	purged := p.target.PurgeTerminal(cutoff)

	if purged > 0 {
		p.logger.Info("purged retained responses",
			"purged", purged, "max_age", p.config.MaxAge)
	}
	return purged
}

// Start begins scheduled pruning per the cron expression. If PruneSchedule
// is empty the scheduler does nothing. The schedule stops when ctx is
// cancelled or Stop is called.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config.PruneSchedule == "" {
		p.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(p.config.PruneSchedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", p.config.PruneSchedule, err)
	}

	if _, err := p.cron.AddFunc(p.config.PruneSchedule, func() { p.Prune() }); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	p.cron.Start()
	p.running = true

	p.logger.Info("retention scheduler started",
		"schedule", p.config.PruneSchedule, "max_age", p.config.MaxAge)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()

	return nil
}

// Stop stops the scheduler and waits for a running prune to complete.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cron != nil && p.running {
		<-p.cron.Stop().Done()
		p.running = false
		p.logger.Info("retention scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is active.
func (p *Pruner) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// NextRun returns the next scheduled pruning time, or nil when no schedule
// is active.
func (p *Pruner) NextRun() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	entries := p.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
