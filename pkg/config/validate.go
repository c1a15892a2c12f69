package config

import (
	"fmt"

	"mercator-hq/ganymede/pkg/queue/ratelimit"
)

// Validate checks the configuration for structural faults. It reports the
// first problem found with enough context to locate it in the file.
func Validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Models))

	for i, m := range cfg.Models {
		if m.ModelID == "" {
			return fmt.Errorf("models[%d]: model_id is required", i)
		}
		if seen[m.ModelID] {
			return fmt.Errorf("models[%d]: duplicate model_id %q", i, m.ModelID)
		}
		seen[m.ModelID] = true

		if len(m.Limiters) > 0 && m.RateLimit != 0 {
			return fmt.Errorf("models[%d] (%s): rate_limit and limiters are mutually exclusive", i, m.ModelID)
		}
		if len(m.Limiters) == 0 && m.RateLimit == 0 && m.RateLimiterMode != "" {
			return fmt.Errorf("models[%d] (%s): rate_limiter_mode requires rate_limit", i, m.ModelID)
		}

		if m.legacy() {
			if err := validateLegacy(m); err != nil {
				return fmt.Errorf("models[%d] (%s): %w", i, m.ModelID, err)
			}
			continue
		}

		for j, l := range m.Limiters {
			if !ratelimit.LimitType(l.Type).Valid() {
				return fmt.Errorf("models[%d] (%s): limiters[%d]: unknown type %q",
					i, m.ModelID, j, l.Type)
			}
			if l.Limit < 1 {
				return fmt.Errorf("models[%d] (%s): limiters[%d]: limit must be >= 1, got %d",
					i, m.ModelID, j, l.Limit)
			}
			if l.WindowSeconds < 0 {
				return fmt.Errorf("models[%d] (%s): limiters[%d]: window_seconds must be >= 0, got %d",
					i, m.ModelID, j, l.WindowSeconds)
			}
			if ratelimit.LimitType(l.Type) == ratelimit.Concurrent && l.WindowSeconds != 0 {
				return fmt.Errorf("models[%d] (%s): limiters[%d]: concurrent limiters take no window",
					i, m.ModelID, j)
			}
		}
	}
	return nil
}

func validateLegacy(m ModelConfig) error {
	if m.RateLimit < 1 {
		return fmt.Errorf("rate_limit must be >= 1, got %d", m.RateLimit)
	}
	switch m.RateLimiterMode {
	case "", ModeRequestsPerPeriod:
		// Empty mode defaults to requests_per_period, matching the
		// normalization in modelConfig. A zero time_period likewise
		// takes the default window.
		if m.TimePeriod < 0 {
			return fmt.Errorf("time_period must be >= 0, got %d", m.TimePeriod)
		}
	case ModeConcurrentRequests:
		if m.TimePeriod != 0 {
			return fmt.Errorf("time_period does not apply to %s", ModeConcurrentRequests)
		}
	default:
		return fmt.Errorf("unknown rate_limiter_mode %q", m.RateLimiterMode)
	}
	return nil
}
