package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
log:
  level: debug
resolver:
  base_url: https://name-resolution-sri.renci.org
normalizer:
  base_url: https://nodenormalization-sri.renci.org
pipeline:
  mode: flexible
  pool_width: 8
redis:
  addr: localhost:6379
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ModeFlexible, cfg.Pipeline.Mode)
	assert.Equal(t, 8, cfg.Pipeline.PoolWidth)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "out", cfg.Pipeline.OutputDir, "defaults fill unset fields")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	path := writeTempConfig(t, `
resolver:
  base_url: https://name-resolution-sri.renci.org
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "normalizer.base_url")
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MEDIREC_RESOLVER_BASE_URL", "https://resolver.example.com")
	t.Setenv("MEDIREC_NORMALIZER_BASE_URL", "https://normalizer.example.com")
	t.Setenv("MEDIREC_PIPELINE_MODE", "flexible")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://resolver.example.com", cfg.Resolver.BaseURL)
	assert.Equal(t, ModeFlexible, cfg.Pipeline.Mode)
}

func TestMustLoad_PanicsOnError(t *testing.T) {
	assert.Panics(t, func() {
		MustLoad(filepath.Join(t.TempDir(), "absent.yaml"))
	})
}
