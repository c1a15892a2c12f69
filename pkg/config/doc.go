// Package config loads model and limiter definitions from YAML files.
//
// # Overview
//
// The config package turns declarative configuration into the model
// configurations the scheduler consumes:
//
//   - YAML parsing with defaults and validation
//   - The legacy single-limiter model form, normalized to the limiter list
//   - A file watcher for picking up configuration changes at runtime
//
// # Configuration Format
//
//	models:
//	  - model_id: gpt-4
//	    limiters:
//	      - type: rpm
//	        limit: 500
//	      - type: tpm
//	        limit: 30000
//	      - type: concurrent
//	        limit: 5
//
//	  # Legacy single-limiter form, still accepted:
//	  - model_id: gpt-3.5-turbo
//	    rate_limit: 3500
//	    rate_limiter_mode: requests_per_period
//	    time_period: 60
//
// # Usage
//
//	cfg, err := config.Load("models.yaml")
//	if err != nil {
//	    return err
//	}
//	err = manager.RegisterAll(cfg.ModelConfigs(), processor)
//
// # Watching
//
//	watcher, err := config.NewWatcher("models.yaml", nil)
//	if err != nil {
//	    return err
//	}
//	go watcher.Watch(ctx, func(cfg *config.Config) {
//	    _ = manager.RegisterAll(cfg.ModelConfigs(), processor)
//	})
package config
