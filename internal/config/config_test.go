package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultUsesSlowestIntervalAndTUIBackend(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1000, cfg.IntervalMs)
	assert.Equal(t, BackendTUI, cfg.Backend)
}

func TestPathHonorsXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/vmon-xdg-test")
	assert.Equal(t, filepath.Join("/tmp/vmon-xdg-test", "vmon", "config.json"), Path())
}

func TestLoadFallsBackToDefaultWhenFileMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg := Load()
	assert.Equal(t, Default(), cfg)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := Default()
	cfg.IntervalMs = 50
	cfg.Backend = BackendMem
	cfg.PNGOutPath = "/tmp/out.png"
	require.NoError(t, Save(cfg))

	got := Load()
	assert.Equal(t, cfg, got)
}

func TestLoadFallsBackToDefaultOnCorruptFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	p := Path()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0700))
	require.NoError(t, os.WriteFile(p, []byte("{not json"), 0600))

	cfg := Load()
	assert.Equal(t, Default(), cfg)
}
