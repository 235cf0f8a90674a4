package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/focusflow/host/internal/config"
	"github.com/focusflow/host/internal/settingsfile"
	"github.com/focusflow/host/internal/tabsync"
	"github.com/focusflow/host/internal/timer"
)

func parseSettingsArgs(name string, args []string, stderr io.Writer) (*config.Config, string, int) {
	fs := flag.NewFlagSet("settings "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common commonFlags
	common.bind(fs, "relay")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: focusflow settings %s [options] <file.yaml>\n\nOptions:\n", name)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, "", 0
		}
		return nil, "", 1
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return nil, "", 1
	}

	cfg, err := common.resolve()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, "", 1
	}
	return cfg, fs.Arg(0), -1
}

func runSettingsExport(args []string, stdout, stderr io.Writer) int {
	cfg, path, code := parseSettingsArgs("export", args, stderr)
	if code >= 0 {
		return code
	}

	store, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	settings := timer.Settings{FocusDuration: cfg.FocusMinutes, BreakDuration: cfg.BreakMinutes}
	var stored timer.Settings
	found, err := tabsync.GetJSON(context.Background(), store, tabsync.KeySettings, &stored)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if found && stored.Validate() == nil {
		settings = stored
	}

	if err := settingsfile.Save(path, settings); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Exported focus %dm, break %dm to %s\n", settings.FocusDuration, settings.BreakDuration, path)
	return 0
}

func runSettingsImport(args []string, stdout, stderr io.Writer) int {
	cfg, path, code := parseSettingsArgs("import", args, stderr)
	if code >= 0 {
		return code
	}

	settings, err := settingsfile.Load(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := importSettings(ctx, cfg, settings); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Imported focus %dm, break %dm\n", settings.FocusDuration, settings.BreakDuration)
	return 0
}

// importSettings broadcasts settings through the relay so open tabs adopt
// them immediately. Without a relay they are written to the store and picked
// up by the next tab that mounts.
func importSettings(ctx context.Context, cfg *config.Config, settings timer.Settings) error {
	tc := tabsync.Detect(ctx, cfg)
	defer tc.Close()

	if tc.Available() {
		if w, ok := tc.Bus.(interface{ WaitConnected(context.Context) error }); ok {
			if err := w.WaitConnected(ctx); err != nil {
				return fmt.Errorf("connect to relay: %w", err)
			}
		}
		return tabsync.NewBroadcaster(tc).Publish(ctx, tabsync.KeySettings, settings)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return tabsync.PutJSON(ctx, store, tabsync.KeySettings, settings)
}
