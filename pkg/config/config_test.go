package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/vecton/pkg/log"
)

func TestLoadParsesYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
peer_id: 3
bind_addr: 10.0.0.5:7000
data_dir: /var/lib/vecton
join:
  peer_id: 1
  bind_addr: 10.0.0.1:7000
log:
  level: debug
  json: true
metrics:
  listen_addr: 0.0.0.0:9090
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.EqualValues(t, 3, cfg.PeerID)
	assert.Equal(t, "10.0.0.5:7000", cfg.BindAddr)
	assert.Equal(t, "/var/lib/vecton", cfg.DataDir)
	require.NotNil(t, cfg.Join)
	assert.EqualValues(t, 1, cfg.Join.PeerID)
	assert.Equal(t, "10.0.0.1:7000", cfg.Join.BindAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "0.0.0.0:9090", cfg.Metric.ListenAddr)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid yaml"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefaultPassesValidate(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidateRequiresPeerID(t *testing.T) {
	cfg := Default()
	cfg.PeerID = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresBindAddr(t *testing.T) {
	cfg := Default()
	cfg.BindAddr = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRequiresDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = ""
	assert.Error(t, cfg.Validate())
}

func TestLogLevelMapsKnownValues(t *testing.T) {
	cfg := Default()

	cfg.Log.Level = "debug"
	assert.Equal(t, log.DebugLevel, cfg.LogLevel())

	cfg.Log.Level = "warn"
	assert.Equal(t, log.WarnLevel, cfg.LogLevel())

	cfg.Log.Level = "error"
	assert.Equal(t, log.ErrorLevel, cfg.LogLevel())
}

func TestLogLevelFallsBackToInfo(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "verbose"
	assert.Equal(t, log.InfoLevel, cfg.LogLevel())
}
