package config

import "time"

// ApplyDefaults fills unset fields with working values. Component-level
// defaults (pool sizes, bucket names) are applied again by the component
// constructors, so these only cover what validation checks.
func ApplyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Resolver.Timeout == 0 {
		cfg.Resolver.Timeout = 30 * time.Second
	}
	if cfg.Normalizer.Timeout == 0 {
		cfg.Normalizer.Timeout = 30 * time.Second
	}

	if cfg.Pipeline.Mode == "" {
		cfg.Pipeline.Mode = ModeStringent
	}
	if cfg.Pipeline.PoolWidth == 0 {
		cfg.Pipeline.PoolWidth = 5
	}
	if cfg.Pipeline.OutputDir == "" {
		cfg.Pipeline.OutputDir = "out"
	}

	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}
}
