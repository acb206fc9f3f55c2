// Package config defines the application configuration and its loading
// rules. Only plain data types and validation live here; component
// packages own their own sub-config structs.
package config

import (
	"fmt"

	"time"

	"github.com/openmedi/medirec/internal/infrastructure/database/postgres"
	"github.com/openmedi/medirec/internal/infrastructure/database/redis"
	"github.com/openmedi/medirec/internal/infrastructure/messaging/kafka"
	"github.com/openmedi/medirec/internal/infrastructure/monitoring/logging"
	"github.com/openmedi/medirec/internal/infrastructure/storage/minio"
	"github.com/openmedi/medirec/internal/llm"
)

// Reconciliation modes. Stringent keeps only ingredients approved in
// every tracked region; flexible keeps ingredients approved anywhere.
const (
	ModeStringent = "stringent"
	ModeFlexible  = "flexible"
)

// ServiceConfig points at one of the external lookup services.
type ServiceConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
}

// PipelineConfig holds the run-level tunables of the reconciliation
// pipeline.
type PipelineConfig struct {
	Mode            string `mapstructure:"mode"` // "stringent" | "flexible"
	PoolWidth       int    `mapstructure:"pool_width"`
	OutputDir       string `mapstructure:"output_dir"`
	SnapshotEnabled bool   `mapstructure:"snapshot_enabled"`
	ArchiveEnabled  bool   `mapstructure:"archive_enabled"`
	DriftEnabled    bool   `mapstructure:"drift_enabled"`
}

// EnrichConfig holds the ATC and SMILES lookup settings. An empty ATC
// endpoint disables ATC enrichment; SMILES falls back to the public
// PubChem PUG REST service when no base URL is given.
type EnrichConfig struct {
	Disabled      bool   `mapstructure:"disabled"`
	ATCEndpoint   string `mapstructure:"atc_endpoint"`
	SMILESBaseURL string `mapstructure:"smiles_base_url"`
}

// MetricsConfig holds the Prometheus exposition endpoint settings.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// Config is the root configuration. Infrastructure sections reuse the
// component packages' own config structs so field names stay in one place.
type Config struct {
	Log        logging.LogConfig `mapstructure:"log"`
	Database   postgres.Config   `mapstructure:"database"`
	Redis      redis.Config      `mapstructure:"redis"`
	Kafka      kafka.Config      `mapstructure:"kafka"`
	MinIO      minio.Config      `mapstructure:"minio"`
	LLM        llm.Config        `mapstructure:"llm"`
	Resolver   ServiceConfig     `mapstructure:"resolver"`
	Normalizer ServiceConfig     `mapstructure:"normalizer"`
	Pipeline   PipelineConfig    `mapstructure:"pipeline"`
	Enrich     EnrichConfig      `mapstructure:"enrich"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
}

// Validate checks semantic consistency of a populated Config. Optional
// infrastructure is only validated when the pipeline actually uses it.
func (c *Config) Validate() error {
	if c.Resolver.BaseURL == "" {
		return fmt.Errorf("config: resolver.base_url is required")
	}
	if c.Normalizer.BaseURL == "" {
		return fmt.Errorf("config: normalizer.base_url is required")
	}

	switch c.Pipeline.Mode {
	case ModeStringent, ModeFlexible:
	default:
		return fmt.Errorf("config: pipeline.mode %q is invalid; expected stringent|flexible", c.Pipeline.Mode)
	}
	if c.Pipeline.PoolWidth < 1 {
		return fmt.Errorf("config: pipeline.pool_width must be >= 1, got %d", c.Pipeline.PoolWidth)
	}
	if c.Pipeline.OutputDir == "" {
		return fmt.Errorf("config: pipeline.output_dir is required")
	}

	if c.Pipeline.SnapshotEnabled && c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required when pipeline.snapshot_enabled is set")
	}
	if c.Pipeline.DriftEnabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers is required when pipeline.drift_enabled is set")
	}
	if c.Pipeline.ArchiveEnabled && c.MinIO.Endpoint == "" {
		return fmt.Errorf("config: minio.endpoint is required when pipeline.archive_enabled is set")
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("config: metrics.listen_addr is required when metrics.enabled is set")
	}

	return nil
}

// CacheBackend reports whether results should be cached in redis or in
// process memory.
func (c *Config) CacheBackend() string {
	if c.Redis.Addr != "" {
		return "redis"
	}
	return "memory"
}
