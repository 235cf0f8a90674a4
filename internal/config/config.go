// Package config provides TOML configuration file loading for the focusflow
// relay and tabs. The configuration file lives at ~/.focusflow/config.toml by
// default, but can be overridden with the --config flag. CLI flags always take
// precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the configuration file structure.
type Config struct {
	// RelayAddr is the host:port of the websocket relay.
	// Default: 127.0.0.1:7171
	RelayAddr string `toml:"relay_addr"`

	// Store selects the shared store backend: sqlite, badger or memory.
	// Only sqlite can be shared between processes.
	// Default: sqlite
	Store string `toml:"store"`

	// StorePath is the SQLite file or Badger directory.
	// Default: ~/.focusflow/focusflow.db
	StorePath string `toml:"store_path"`

	// LogLevel controls logging verbosity: debug, info, warn, error.
	// Default: info
	LogLevel string `toml:"log_level"`

	// LogFile redirects log output. Empty means stderr.
	LogFile string `toml:"log_file"`

	// FocusMinutes and BreakMinutes seed the settings key when it is absent.
	FocusMinutes int `toml:"focus_minutes"`
	BreakMinutes int `toml:"break_minutes"`

	// TickMs is the countdown tick interval in milliseconds.
	// Default: 1000
	TickMs int `toml:"tick_ms"`

	// AudioCommand is the player binary. Empty means auto-detect.
	AudioCommand string `toml:"audio_command"`

	// BreakSound and FocusSound name the catalogued sounds played when a
	// break or a focus session begins.
	// Default: time-for-break, time-for-focus
	BreakSound string `toml:"break_sound"`
	FocusSound string `toml:"focus_sound"`

	// AudioReleaseBufferMs is added to a sound's duration before its claim is deleted.
	// Default: 500
	AudioReleaseBufferMs int `toml:"audio_release_buffer_ms"`

	// ClaimStaleAfterS is the age at which an audio claim no longer blocks other tabs.
	// Default: 60
	ClaimStaleAfterS int `toml:"claim_stale_after_s"`

	// SweepIntervalS is how often the relay deletes stale audio claims.
	// Default: 300
	SweepIntervalS int `toml:"sweep_interval_s"`

	// DuplicateWindowMs is how long the relay remembers message ids.
	// Default: 2000
	DuplicateWindowMs int `toml:"duplicate_window_ms"`

	// Standalone forces degraded single-tab mode (no store, no relay).
	// Default: false
	Standalone bool `toml:"standalone"`
}

// DefaultConfigPath returns the default config file location: ~/.focusflow/config.toml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".focusflow", "config.toml"), nil
}

// DefaultStorePath returns the default SQLite location: ~/.focusflow/focusflow.db.
func DefaultStorePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".focusflow", "focusflow.db"), nil
}

// WriteDefault creates a config file with default values at the given path.
// An existing file is never overwritten.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(`# focusflow configuration

relay_addr = %q
store = %q

focus_minutes = %d
break_minutes = %d
`, DefaultRelayAddr, DefaultStore, DefaultFocusMinutes, DefaultBreakMinutes)

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load reads a TOML config file from the given path and returns a Config.
//
// Behavior:
//   - If path is empty, attempts the default location (~/.focusflow/config.toml)
//     and returns an empty Config without error if that file doesn't exist.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
//
// Defaults are not applied; call ApplyDefaults after merging CLI flags.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() error {
	if c.RelayAddr == "" {
		c.RelayAddr = DefaultRelayAddr
	}
	if c.Store == "" {
		c.Store = DefaultStore
	}
	if c.StorePath == "" && c.Store != "memory" {
		path, err := DefaultStorePath()
		if err != nil {
			return err
		}
		c.StorePath = path
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.FocusMinutes <= 0 {
		c.FocusMinutes = DefaultFocusMinutes
	}
	if c.BreakMinutes <= 0 {
		c.BreakMinutes = DefaultBreakMinutes
	}
	if c.TickMs <= 0 {
		c.TickMs = defaultTickMs
	}
	if c.BreakSound == "" {
		c.BreakSound = DefaultBreakSound
	}
	if c.FocusSound == "" {
		c.FocusSound = DefaultFocusSound
	}
	if c.AudioReleaseBufferMs <= 0 {
		c.AudioReleaseBufferMs = defaultAudioReleaseBufferMs
	}
	if c.ClaimStaleAfterS <= 0 {
		c.ClaimStaleAfterS = defaultClaimStaleAfterS
	}
	if c.SweepIntervalS <= 0 {
		c.SweepIntervalS = defaultSweepIntervalS
	}
	if c.DuplicateWindowMs <= 0 {
		c.DuplicateWindowMs = defaultDuplicateWindowMs
	}

	switch c.Store {
	case "sqlite", "badger", "memory":
	default:
		return fmt.Errorf("unknown store backend %q (want sqlite, badger or memory)", c.Store)
	}
	return nil
}

// Merge copies non-zero fields from other into c. Booleans are only copied
// when set so a file value can be overridden by an explicit flag upstream.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if c.RelayAddr == "" {
		c.RelayAddr = other.RelayAddr
	}
	if c.Store == "" {
		c.Store = other.Store
	}
	if c.StorePath == "" {
		c.StorePath = other.StorePath
	}
	if c.LogLevel == "" {
		c.LogLevel = other.LogLevel
	}
	if c.LogFile == "" {
		c.LogFile = other.LogFile
	}
	if c.FocusMinutes == 0 {
		c.FocusMinutes = other.FocusMinutes
	}
	if c.BreakMinutes == 0 {
		c.BreakMinutes = other.BreakMinutes
	}
	if c.TickMs == 0 {
		c.TickMs = other.TickMs
	}
	if c.AudioCommand == "" {
		c.AudioCommand = other.AudioCommand
	}
	if c.BreakSound == "" {
		c.BreakSound = other.BreakSound
	}
	if c.FocusSound == "" {
		c.FocusSound = other.FocusSound
	}
	if c.AudioReleaseBufferMs == 0 {
		c.AudioReleaseBufferMs = other.AudioReleaseBufferMs
	}
	if c.ClaimStaleAfterS == 0 {
		c.ClaimStaleAfterS = other.ClaimStaleAfterS
	}
	if c.SweepIntervalS == 0 {
		c.SweepIntervalS = other.SweepIntervalS
	}
	if c.DuplicateWindowMs == 0 {
		c.DuplicateWindowMs = other.DuplicateWindowMs
	}
	if other.Standalone {
		c.Standalone = true
	}
}
