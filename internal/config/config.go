// Package config loads and saves vmon's on-disk defaults: sample interval,
// rate-table starting point, chart geometry, and backend selection.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmon-project/vmon/internal/logging"
)

// Backend names which rendering backend a chart composes against.
type Backend string

const (
	BackendTUI Backend = "tui"
	BackendMem Backend = "mem"
)

// Config holds the defaults a chart or driver is built with absent an
// overriding command-line flag.
type Config struct {
	IntervalMs int     `json:"interval_ms"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	NumCPU     int     `json:"num_cpu"`
	Backend    Backend `json:"backend"`
	PNGOutPath string  `json:"png_out_path,omitempty"`
	DeferDraw  bool    `json:"defer_maintenance"`
}

// Default returns the configuration vmon starts with when no config file
// exists: the slowest rate-table preset, an 80x24 chart sized for a numCPU
// of 1, and the interactive terminal backend.
func Default() Config {
	return Config{
		IntervalMs: 1000,
		Width:      80,
		Height:     24,
		NumCPU:     1,
		Backend:    BackendTUI,
	}
}

// Path returns $XDG_CONFIG_HOME/vmon/config.json, falling back to
// ~/.config/vmon/config.json. Returns empty string if the home directory
// can't be determined — callers treat that as "use defaults, don't persist".
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "vmon", "config.json")
}

// Load reads the config file, falling back to Default on any error —
// including a missing file, which is the common case on first run.
func Load() Config {
	cfg := Default()
	p := Path()
	if p == "" {
		return cfg
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return cfg
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		logging.Component("config").Warn().Err(err).Str("path", p).Msg("config parse failed, using defaults")
		return Default()
	}
	return cfg
}

// Save writes cfg to Path, creating its parent directory if needed.
func Save(cfg Config) error {
	path := Path()
	if path == "" {
		return fmt.Errorf("config: cannot determine config directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}
