package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Resolver.BaseURL = "https://name-resolution-sri.renci.org"
	cfg.Normalizer.BaseURL = "https://nodenormalization-sri.renci.org"
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_RequiresServiceURLs(t *testing.T) {
	cfg := validConfig()
	cfg.Resolver.BaseURL = ""
	assert.ErrorContains(t, cfg.Validate(), "resolver.base_url")

	cfg = validConfig()
	cfg.Normalizer.BaseURL = ""
	assert.ErrorContains(t, cfg.Validate(), "normalizer.base_url")
}

func TestValidate_Mode(t *testing.T) {
	cfg := validConfig()
	cfg.Pipeline.Mode = "permissive"
	assert.ErrorContains(t, cfg.Validate(), "pipeline.mode")

	cfg.Pipeline.Mode = ModeFlexible
	assert.NoError(t, cfg.Validate())
}

func TestValidate_OptionalInfraOnlyWhenEnabled(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate(), "unset database is fine while snapshots are off")

	cfg.Pipeline.SnapshotEnabled = true
	assert.ErrorContains(t, cfg.Validate(), "database.host")
	cfg.Database.Host = "localhost"
	assert.NoError(t, cfg.Validate())

	cfg.Pipeline.DriftEnabled = true
	assert.ErrorContains(t, cfg.Validate(), "kafka.brokers")
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	assert.NoError(t, cfg.Validate())

	cfg.Pipeline.ArchiveEnabled = true
	assert.ErrorContains(t, cfg.Validate(), "minio.endpoint")
	cfg.MinIO.Endpoint = "localhost:9000"
	assert.NoError(t, cfg.Validate())
}

func TestCacheBackend(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "memory", cfg.CacheBackend())

	cfg.Redis.Addr = "localhost:6379"
	assert.Equal(t, "redis", cfg.CacheBackend())
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ModeStringent, cfg.Pipeline.Mode)
	assert.Equal(t, 5, cfg.Pipeline.PoolWidth)
	assert.Equal(t, "out", cfg.Pipeline.OutputDir)
	assert.NotZero(t, cfg.Resolver.Timeout)
}
