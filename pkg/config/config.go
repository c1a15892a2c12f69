package config

import (
	"time"

	"mercator-hq/ganymede/pkg/queue"
	"mercator-hq/ganymede/pkg/queue/ratelimit"
)

// Config is the root of the declarative configuration tree.
type Config struct {
	// Models lists the model definitions to register.
	Models []ModelConfig `yaml:"models"`
}

// ModelConfig declares one model and its limiters.
//
// Two forms are accepted. The list form names each limiter explicitly in
// Limiters. The legacy single-limiter form sets RateLimit plus
// RateLimiterMode and is normalized into a one-element limiter list before
// the scheduler sees it.
type ModelConfig struct {
	// ModelID uniquely identifies the model.
	ModelID string `yaml:"model_id"`

	// Limiters is the ordered limiter list (list form).
	Limiters []LimiterConfig `yaml:"limiters,omitempty"`

	// RateLimit is the legacy single limit value.
	RateLimit int `yaml:"rate_limit,omitempty"`

	// RateLimiterMode selects the legacy limiter kind:
	// "requests_per_period" (default) or "concurrent_requests".
	RateLimiterMode string `yaml:"rate_limiter_mode,omitempty"`

	// TimePeriod is the legacy window in seconds (default 60).
	TimePeriod int `yaml:"time_period,omitempty"`
}

// LimiterConfig declares one limiter in the list form.
type LimiterConfig struct {
	// Type is the limit dimension: rpm, rpd, tpm, tpd, itpm, otpm,
	// concurrent.
	Type string `yaml:"type"`

	// Limit is the maximum count for the dimension.
	Limit int `yaml:"limit"`

	// WindowSeconds overrides the type's default window.
	WindowSeconds int `yaml:"window_seconds,omitempty"`
}

// Legacy rate limiter modes.
const (
	ModeRequestsPerPeriod  = "requests_per_period"
	ModeConcurrentRequests = "concurrent_requests"
)

// legacy reports whether the model uses the legacy single-limiter form.
func (m ModelConfig) legacy() bool {
	return len(m.Limiters) == 0 && m.RateLimit != 0
}

// ModelConfigs normalizes the configuration into the scheduler's form.
// Legacy definitions become a one-element limiter list; explicit window
// overrides are carried through.
func (c *Config) ModelConfigs() []queue.ModelConfig {
	out := make([]queue.ModelConfig, 0, len(c.Models))
	for _, m := range c.Models {
		out = append(out, m.modelConfig())
	}
	return out
}

func (m ModelConfig) modelConfig() queue.ModelConfig {
	if m.legacy() {
		if m.RateLimiterMode == ModeConcurrentRequests {
			return queue.ModelConfig{
				ModelID: m.ModelID,
				Limiters: []ratelimit.Config{
					{Type: ratelimit.Concurrent, Limit: m.RateLimit},
				},
			}
		}
		return queue.ModelConfig{
			ModelID: m.ModelID,
			Limiters: []ratelimit.Config{
				{
					Type:   ratelimit.RPM,
					Limit:  m.RateLimit,
					Window: time.Duration(m.TimePeriod) * time.Second,
				},
			},
		}
	}

	limiters := make([]ratelimit.Config, 0, len(m.Limiters))
	for _, l := range m.Limiters {
		limiters = append(limiters, ratelimit.Config{
			Type:   ratelimit.LimitType(l.Type),
			Limit:  l.Limit,
			Window: time.Duration(l.WindowSeconds) * time.Second,
		})
	}
	return queue.ModelConfig{ModelID: m.ModelID, Limiters: limiters}
}
