package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate(), "defaults must validate")
	assert.Equal(t, 1985, cfg.Port)
	assert.Equal(t, 1986, cfg.DiscoveryPort)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "serengeti.yaml")
	data := []byte("port: 2985\ndata_path: /tmp/serengeti\npersist_interval: 30s\n")
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2985, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.PersistInterval)
	// Untouched keys keep defaults.
	assert.Equal(t, 5*time.Second, cfg.PingInterval)
}

func TestEnvOverridesDataPath(t *testing.T) {
	t.Setenv("SERENGETI_DATA_PATH", "/var/lib/serengeti")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/serengeti", cfg.DataPath)
}

func TestInvalidConfigRejected(t *testing.T) {
	cfg := Default()
	cfg.Port = 0
	assert.Error(t, cfg.Validate(), "port 0 must fail")

	cfg = Default()
	cfg.QueryMemoryFraction = 1.5
	assert.Error(t, cfg.Validate(), "fraction > 1 must fail")
}

func TestQueryPoolBytes(t *testing.T) {
	cfg := Default()
	cfg.MemoryBudgetBytes = 100
	cfg.QueryMemoryFraction = 0.7
	assert.Equal(t, int64(70), cfg.QueryPoolBytes())
}
