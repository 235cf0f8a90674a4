package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/focusflow/host/internal/config"
	"github.com/focusflow/host/internal/relay"
	"github.com/focusflow/host/internal/storage"
	"github.com/focusflow/host/internal/timer"
)

func runRelayStart(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("relay start", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common commonFlags
	common.bind(fs, "addr")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: focusflow relay start [options]\n\nStart the relay daemon that every tab connects to.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	// First run: seed a config file so there is something to edit.
	if common.configPath == "" {
		if path, err := config.DefaultConfigPath(); err == nil {
			if _, err := os.Stat(path); os.IsNotExist(err) {
				if err := config.WriteDefault(path); err != nil {
					fmt.Fprintf(stderr, "Warning: failed to create config file: %v\n", err)
				} else {
					fmt.Fprintf(stdout, "Created config: %s\n", path)
				}
			}
		}
	}

	cfg, err := common.resolve()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	logFile, err := setupLogging(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if logFile != nil {
		defer logFile.Close()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	stop := make(chan struct{})
	go func() {
		sig := <-sigCh
		fmt.Fprintf(stdout, "\nReceived signal %v, stopping...\n", sig)
		close(stop)
	}()

	return serveRelay(cfg, stop, nil, stdout, stderr)
}

// serveRelay runs the relay until stop is closed. ready, when non-nil,
// receives the listening address once the relay accepts connections.
func serveRelay(cfg *config.Config, stop <-chan struct{}, ready chan<- string, stdout, stderr io.Writer) int {
	store, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	srv := relay.New(relay.Options{
		Addr:  cfg.RelayAddr,
		Store: store,
		DefaultSettings: timer.Settings{
			FocusDuration: cfg.FocusMinutes,
			BreakDuration: cfg.BreakMinutes,
		},
		DuplicateWindow: cfg.DuplicateWindow(),
		SweepInterval:   cfg.SweepInterval(),
		ClaimStaleAfter: cfg.ClaimStaleAfter(),
	})

	if err := <-srv.StartAsync(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Relay listening on %s (store: %s)\n", srv.Addr(), describeStore(cfg))
	if ready != nil {
		ready <- srv.Addr()
	}

	<-stop
	if err := srv.Stop(); err != nil {
		fmt.Fprintf(stderr, "Warning: relay shutdown: %v\n", err)
	}
	return 0
}

// openStore opens the configured backend, creating the parent directory of
// a file-backed store.
func openStore(cfg *config.Config) (storage.Store, error) {
	if cfg.Store != "memory" && cfg.StorePath != "" && cfg.StorePath != ":memory:" {
		dir := cfg.StorePath
		if cfg.Store == "sqlite" {
			dir = filepath.Dir(cfg.StorePath)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return storage.Open(cfg.Store, cfg.StorePath)
}

func describeStore(cfg *config.Config) string {
	if cfg.Store == "memory" || cfg.StorePath == "" {
		return cfg.Store
	}
	return cfg.Store + " at " + cfg.StorePath
}

func runRelayStatus(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("relay status", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common commonFlags
	common.bind(fs, "addr")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: focusflow relay status [options]\n\nShow the current status of the relay daemon.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	cfg, err := common.resolve()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	status, err := relay.FetchStatus(context.Background(), cfg.RelayAddr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	writeRelayStatusOutput(stdout, status)
	return 0
}

// writeRelayStatusOutput renders human-readable relay status output.
func writeRelayStatusOutput(stdout io.Writer, status *relay.StatusResponse) {
	fmt.Fprintf(stdout, "Relay Status\n")
	fmt.Fprintf(stdout, "============\n")
	fmt.Fprintf(stdout, "Listening:    %s\n", status.ListeningAddress)
	fmt.Fprintf(stdout, "Tabs:         %d connected\n", status.ConnectedTabs)
	fmt.Fprintf(stdout, "Store:        %s\n", availability(status.StoreAvailable))
	fmt.Fprintf(stdout, "Relayed:      %d\n", status.Relayed)
	fmt.Fprintf(stdout, "Duplicates:   %d dropped\n", status.DuplicatesDropped)
	fmt.Fprintf(stdout, "Rate limited: %d dropped\n", status.RateLimited)
	fmt.Fprintf(stdout, "Uptime:       %s\n", formatUptime(status.UptimeSeconds))
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable"
}

// formatUptime formats an uptime in seconds as a human-readable string.
// Examples: "45s", "5m 23s", "2h 15m", "3d 4h"
func formatUptime(seconds int64) string {
	d := time.Duration(seconds) * time.Second
	if d < time.Minute {
		return fmt.Sprintf("%ds", seconds)
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd %dh", int(d.Hours())/24, int(d.Hours())%24)
}
