package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/focusflow/host/internal/config"
	"github.com/focusflow/host/internal/storage"
	"github.com/focusflow/host/internal/tabsync"
	"github.com/focusflow/host/internal/timer"
)

// stateReport is what `focusflow state --json` prints.
type stateReport struct {
	Stored      *timer.State                  `json:"stored,omitempty"`
	LastUpdate  int64                         `json:"last_update,omitempty"`
	Projected   timer.State                   `json:"projected"`
	Settings    timer.Settings                `json:"settings"`
	AudioClaims map[string]tabsync.AudioClaim `json:"audio_claims,omitempty"`
}

func runState(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("state", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common commonFlags
	common.bind(fs, "relay")
	jsonOutput := fs.Bool("json", false, "Output in JSON format")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: focusflow state [options]\n\nPrint the persisted timer state and what a tab opened now would show.\n\nOptions:\n")
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

	store, err := openStore(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	report, err := readState(context.Background(), store, cfg, time.Now())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.Encode(report)
		return 0
	}
	writeStateOutput(stdout, report)
	return 0
}

// readState loads every persisted key and projects the state forward to now
// the same way a tab does when it mounts.
func readState(ctx context.Context, store storage.Store, cfg *config.Config, now time.Time) (*stateReport, error) {
	report := &stateReport{
		Settings: timer.Settings{FocusDuration: cfg.FocusMinutes, BreakDuration: cfg.BreakMinutes},
	}

	var settings timer.Settings
	found, err := tabsync.GetJSON(ctx, store, tabsync.KeySettings, &settings)
	if err != nil {
		return nil, err
	}
	if found {
		report.Settings = settings
	}

	var stored timer.State
	found, err = tabsync.GetJSON(ctx, store, tabsync.KeyTimerState, &stored)
	if err != nil {
		return nil, err
	}
	if found {
		report.Stored = &stored
	}

	if _, err := tabsync.GetJSON(ctx, store, tabsync.KeyLastUpdate, &report.LastUpdate); err != nil {
		return nil, err
	}
	var lastUpdate time.Time
	if report.LastUpdate > 0 {
		lastUpdate = time.UnixMilli(report.LastUpdate)
	}
	report.Projected = timer.Reconcile(report.Stored, lastUpdate, now, report.Settings)

	keys, err := store.Keys(ctx, tabsync.AudioClaimPrefix)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		var claim tabsync.AudioClaim
		if ok, err := tabsync.GetJSON(ctx, store, key, &claim); err != nil || !ok {
			continue
		}
		if report.AudioClaims == nil {
			report.AudioClaims = make(map[string]tabsync.AudioClaim)
		}
		report.AudioClaims[strings.TrimPrefix(key, tabsync.AudioClaimPrefix)] = claim
	}
	return report, nil
}

func writeStateOutput(stdout io.Writer, r *stateReport) {
	fmt.Fprintf(stdout, "Timer State\n")
	fmt.Fprintf(stdout, "===========\n")
	if r.Stored == nil {
		fmt.Fprintf(stdout, "Stored:       (none)\n")
	} else {
		fmt.Fprintf(stdout, "Stored:       %s\n", *r.Stored)
	}
	if r.LastUpdate > 0 {
		fmt.Fprintf(stdout, "Last update:  %s\n", time.UnixMilli(r.LastUpdate).Format(time.RFC3339))
	}
	fmt.Fprintf(stdout, "Now:          %s\n", r.Projected)
	fmt.Fprintf(stdout, "Settings:     focus %dm, break %dm\n", r.Settings.FocusDuration, r.Settings.BreakDuration)
	for event, claim := range r.AudioClaims {
		fmt.Fprintf(stdout, "Audio claim:  %s by %s at %s\n", event, claim.OwnerTabID, time.UnixMilli(claim.Timestamp).Format(time.RFC3339))
	}
}
