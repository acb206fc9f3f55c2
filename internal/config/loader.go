package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix for every setting.
const envPrefix = "MEDIREC"

// configKeys enumerates every known key. Viper only sees environment
// variables for keys it has been told about, so each key is bound
// explicitly; without this, env-only settings never reach Unmarshal.
var configKeys = []string{
	"log.level", "log.format", "log.output_paths",
	"database.host", "database.port", "database.user", "database.password",
	"database.database", "database.ssl_mode", "database.max_conns",
	"database.min_conns", "database.max_conn_lifetime",
	"database.max_conn_idle_time", "database.connect_timeout",
	"redis.addr", "redis.username", "redis.password", "redis.db",
	"redis.pool_size", "redis.min_idle_conns", "redis.dial_timeout",
	"redis.read_timeout", "redis.write_timeout", "redis.max_retries",
	"redis.min_retry_backoff", "redis.max_retry_backoff",
	"kafka.brokers", "kafka.topic", "kafka.acks", "kafka.batch_timeout",
	"kafka.write_timeout", "kafka.max_retries",
	"minio.endpoint", "minio.access_key_id", "minio.secret_access_key",
	"minio.use_ssl", "minio.region", "minio.bucket",
	"llm.base_url", "llm.api_key", "llm.model", "llm.temperature",
	"llm.max_tokens", "llm.timeout",
	"resolver.base_url", "resolver.timeout", "resolver.max_attempts",
	"resolver.base_delay",
	"normalizer.base_url", "normalizer.timeout", "normalizer.max_attempts",
	"normalizer.base_delay",
	"pipeline.mode", "pipeline.pool_width", "pipeline.output_dir",
	"pipeline.snapshot_enabled", "pipeline.archive_enabled",
	"pipeline.drift_enabled",
	"enrich.disabled", "enrich.atc_endpoint", "enrich.smiles_base_url",
	"metrics.enabled", "metrics.listen_addr",
}

// newViper builds a viper instance with the standard settings: YAML
// files, MEDIREC_ env prefix, and a key replacer mapping "." to "_" so
// "database.host" resolves from MEDIREC_DATABASE_HOST.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range configKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// Load reads the YAML file at configPath, merges MEDIREC_* environment
// overrides, applies defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from MEDIREC_* environment variables alone,
// for containerised deployments with no config file.
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath and invokes onChange with each newly parsed
// Config. A change that fails to parse or validate is dropped so the
// application never observes a broken config. Non-blocking; the watcher
// goroutine is managed by viper.
func Watch(configPath string, onChange func(*Config)) {
	v := newViper()
	v.SetConfigFile(configPath)

	// Initial read; callers are expected to have called Load already.
	_ = v.ReadInConfig()

	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
}

// MustLoad panics on any load error, for use in main().
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
