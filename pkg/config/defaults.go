package config

// ApplyDefaults fills unset configuration fields with their defaults.
func ApplyDefaults(cfg *Config) {
	for i := range cfg.Models {
		m := &cfg.Models[i]
		if m.legacy() {
			if m.RateLimiterMode == "" {
				m.RateLimiterMode = ModeRequestsPerPeriod
			}
			if m.RateLimiterMode == ModeRequestsPerPeriod && m.TimePeriod == 0 {
				m.TimePeriod = 60
			}
		}
	}
}
