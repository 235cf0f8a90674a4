package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/focusflow/host/internal/audio"
	"github.com/focusflow/host/internal/bus"
	"github.com/focusflow/host/internal/config"
	"github.com/focusflow/host/internal/schedule"
	"github.com/focusflow/host/internal/storage"
	"github.com/focusflow/host/internal/tabsync"
	"github.com/focusflow/host/internal/timer"
)

type simOptions struct {
	tabs         int
	store        string
	storePath    string
	duration     time.Duration
	tickInterval time.Duration
	focusMinutes int
	breakMinutes int

	// closeFirstAfter closes tab 1 part-way through; zero keeps it open.
	closeFirstAfter time.Duration
}

func runSim(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sim", flag.ContinueOnError)
	fs.SetOutput(stderr)

	tabs := fs.Int("tabs", 3, "Number of tabs to run")
	store := fs.String("store", "memory", "Store backend: memory, badger or sqlite")
	storePath := fs.String("store-path", "", "Badger directory or SQLite file (default: in-memory)")
	seconds := fs.Int("seconds", 5, "How long to run")
	tickMs := fs.Int("tick-ms", 20, "Countdown tick interval in ms")
	focus := fs.Int("focus", 1, "Focus duration in minutes")
	brk := fs.Int("break", 1, "Break duration in minutes")
	closeFirst := fs.Bool("close-first", false, "Close tab 1 halfway through")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: focusflow sim [options]\n\nRun several tabs in one process sharing a store and an in-process bus.\nTab 1 starts the timer; the rest follow it.\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	opts := simOptions{
		tabs:         *tabs,
		store:        *store,
		storePath:    *storePath,
		duration:     time.Duration(*seconds) * time.Second,
		tickInterval: time.Duration(*tickMs) * time.Millisecond,
		focusMinutes: *focus,
		breakMinutes: *brk,
	}
	if *closeFirst {
		opts.closeFirstAfter = opts.duration / 2
	}

	if err := simulate(context.Background(), opts, stdout); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// countingPlayer counts sounds that actually reached a player.
type countingPlayer struct {
	audio.Player
	played *atomic.Int64
}

func (p countingPlayer) Play(ctx context.Context, s audio.Sound) (time.Duration, error) {
	p.played.Add(1)
	return p.Player.Play(ctx, s)
}

func simulate(ctx context.Context, opts simOptions, out io.Writer) error {
	if opts.tabs < 1 {
		return fmt.Errorf("need at least one tab, got %d", opts.tabs)
	}
	if opts.duration <= 0 {
		return fmt.Errorf("duration must be positive")
	}

	cfg := &config.Config{
		Store:        opts.store,
		StorePath:    opts.storePath,
		FocusMinutes: opts.focusMinutes,
		BreakMinutes: opts.breakMinutes,
		TickMs:       int(opts.tickInterval / time.Millisecond),
	}
	if cfg.Store == "sqlite" && cfg.StorePath == "" {
		cfg.StorePath = ":memory:"
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return err
	}
	if err := (timer.Settings{FocusDuration: cfg.FocusMinutes, BreakDuration: cfg.BreakMinutes}).Validate(); err != nil {
		return err
	}

	var store storage.Store
	var err error
	if cfg.Store == "badger" && opts.storePath == "" {
		store, err = storage.NewBadgerStore("")
	} else {
		store, err = openStore(cfg)
	}
	if err != nil {
		return err
	}
	defer store.Close()

	hub := bus.NewLocal()
	defer hub.Close()

	var played atomic.Int64
	engines := make([]*timer.Engine, opts.tabs)
	defer func() {
		for _, e := range engines {
			if e != nil {
				e.Close()
			}
		}
	}()
	for i := range engines {
		tc := tabsync.NewContext(store, hub)
		player := countingPlayer{Player: audio.LogPlayer{Prefix: fmt.Sprintf("tab %d: ", i+1)}, played: &played}
		e, err := newEngine(cfg, tc, schedule.System{}, player)
		if err != nil {
			return err
		}
		engines[i] = e
		if err := e.Mount(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "tab %d (%s) mounted at %s\n", i+1, tc.TabID, e.State())
	}

	var completions atomic.Int64
	events := engines[len(engines)-1].Subscribe(256)
	go func() {
		var prev timer.State
		for ev := range events {
			if ev.State.Completed && !(prev.Completed && prev.Mode == ev.State.Mode) {
				completions.Add(1)
			}
			prev = ev.State
		}
	}()

	if err := engines[0].Start(); err != nil {
		return err
	}
	fmt.Fprintf(out, "tab 1 started the timer\n")

	open := engines
	if opts.closeFirstAfter > 0 && opts.tabs > 1 {
		time.Sleep(opts.closeFirstAfter)
		engines[0].Close()
		fmt.Fprintf(out, "tab 1 closed at %s\n", engines[1].State())
		open = engines[1:]
		time.Sleep(opts.duration - opts.closeFirstAfter)
	} else {
		time.Sleep(opts.duration)
	}

	// Stop the clock on one tab so every copy settles on the same state.
	if err := open[0].Pause(); err != nil {
		return err
	}
	for _, e := range open {
		if err := e.Flush(ctx); err != nil {
			return err
		}
	}

	first := open[0].State()
	agree := true
	for i, e := range engines {
		state := e.State()
		if i > 0 || opts.closeFirstAfter == 0 {
			agree = agree && state == first
		}
		fmt.Fprintf(out, "tab %d: %s\n", i+1, state)
	}
	fmt.Fprintf(out, "in agreement: %v\n", agree)
	fmt.Fprintf(out, "sessions completed: %d\n", completions.Load())
	fmt.Fprintf(out, "sounds played: %d\n", played.Load())
	return nil
}
