package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/focusflow/host/internal/config"
)

// commonFlags are the flags shared by every command that touches the store
// or the relay.
type commonFlags struct {
	configPath string
	cfg        config.Config
}

// bind registers the shared flags. addrName is "addr" for the relay itself
// and "relay" for commands that connect to it.
func (c *commonFlags) bind(fs *flag.FlagSet, addrName string) {
	fs.StringVar(&c.configPath, "config", "", "Path to config file (default: ~/.focusflow/config.toml)")
	fs.StringVar(&c.cfg.RelayAddr, addrName, "", "Relay address (default: 127.0.0.1:7171)")
	fs.StringVar(&c.cfg.Store, "store", "", "Store backend: sqlite, badger or memory (default: sqlite)")
	fs.StringVar(&c.cfg.StorePath, "store-path", "", "SQLite file or Badger directory (default: ~/.focusflow/focusflow.db)")
	fs.StringVar(&c.cfg.LogLevel, "log-level", "", "Log level: debug, info, warn, error (default: info)")
	fs.StringVar(&c.cfg.LogFile, "log-file", "", "Log file path (default: stderr)")
	fs.IntVar(&c.cfg.TickMs, "tick-ms", 0, "Countdown tick interval in ms (default: 1000)")
}

// resolve loads the config file and merges it under the flags. CLI flags
// always take precedence over file values.
func (c *commonFlags) resolve() (*config.Config, error) {
	fileCfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}

	cfg := c.cfg
	cfg.Merge(fileCfg)
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setupLogging points the standard logger at the configured file, or at
// stderr. The returned closer is nil when no file was opened.
func setupLogging(cfg *config.Config, stderr io.Writer) (io.Closer, error) {
	if cfg.LogLevel == "debug" {
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	}

	if cfg.LogFile == "" {
		log.SetOutput(stderr)
		return nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(f)
	return f, nil
}
