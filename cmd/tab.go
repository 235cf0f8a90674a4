package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/focusflow/host/internal/audio"
	"github.com/focusflow/host/internal/config"
	apperrors "github.com/focusflow/host/internal/errors"
	"github.com/focusflow/host/internal/schedule"
	"github.com/focusflow/host/internal/tabsync"
	"github.com/focusflow/host/internal/timer"
)

const tabCommands = `Commands:
  start                      Start or resume the countdown
  pause                      Pause the countdown
  reset focus|break          Reset to a full session of the given mode
  activity none|game|relax   Choose a break activity (starts the break)
  focus <minutes>            Set the focus duration
  break <minutes>            Set the break duration
  state                      Print the current state
  help                       Show this list
  quit                       Leave the tab
`

func runTab(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tab", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var common commonFlags
	common.bind(fs, "relay")
	standalone := fs.Bool("standalone", false, "Run without store or relay (degraded mode)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: focusflow tab [options]\n\nRun an interactive tab. Commands are read from stdin.\n\n%s\nOptions:\n", tabCommands)
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
	if *standalone {
		cfg.Standalone = true
	}

	logFile, err := setupLogging(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if logFile != nil {
		defer logFile.Close()
	}

	ctx := context.Background()
	tc := tabsync.Detect(ctx, cfg)
	defer tc.Close()

	engine, err := newEngine(cfg, tc, schedule.System{}, audio.NewPlayer(cfg.AudioCommand, ""))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	events := engine.Subscribe(64)

	var printer sync.WaitGroup
	printer.Add(1)
	go func() {
		defer printer.Done()
		printEvents(stdout, events)
	}()

	if err := engine.Mount(ctx); err != nil {
		engine.Close()
		printer.Wait()
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	mode := "connected"
	if !tc.Available() {
		mode = "standalone"
	}
	fmt.Fprintf(stdout, "Tab %s (%s). Type 'help' for commands.\n", tc.TabID, mode)

	scanner := bufio.NewScanner(stdin)
	for scanner.Scan() {
		quit, err := execTabCommand(engine, scanner.Text(), stdout)
		if err != nil {
			fmt.Fprintln(stdout, describeError(err))
		}
		if quit {
			break
		}
	}

	if err := engine.Close(); err != nil {
		fmt.Fprintf(stderr, "Warning: %v\n", err)
	}
	printer.Wait()
	return 0
}

// newEngine builds an engine for tc from the resolved config.
func newEngine(cfg *config.Config, tc *tabsync.Context, sched schedule.Scheduler, player audio.Player) (*timer.Engine, error) {
	breakSound, err := audio.Lookup(cfg.BreakSound)
	if err != nil {
		return nil, fmt.Errorf("break_sound: %w", err)
	}
	focusSound, err := audio.Lookup(cfg.FocusSound)
	if err != nil {
		return nil, fmt.Errorf("focus_sound: %w", err)
	}
	return timer.New(timer.Options{
		Context:   tc,
		Scheduler: sched,
		Player:    player,
		Settings: timer.Settings{
			FocusDuration: cfg.FocusMinutes,
			BreakDuration: cfg.BreakMinutes,
		},
		TickInterval: cfg.TickInterval(),
		Audio: tabsync.AudioOptions{
			ReleaseBuffer: cfg.AudioReleaseBuffer(),
			StaleAfter:    cfg.ClaimStaleAfter(),
		},
		BreakSound: breakSound,
		FocusSound: focusSound,
		Debug:      cfg.LogLevel == "debug",
	}), nil
}

// describeError formats a command error for the prompt, naming the error code
// when there is one.
func describeError(err error) string {
	code, msg := apperrors.ToCodeAndMessage(err)
	if code == apperrors.CodeUnknown {
		return "Error: " + msg
	}
	return fmt.Sprintf("Error: %s [%s]", msg, code)
}

// execTabCommand applies one line of input to the engine. Blank lines are
// ignored. quit is true when the tab should leave.
func execTabCommand(e *timer.Engine, line string, out io.Writer) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	arg := func() (string, error) {
		if len(fields) < 2 {
			return "", fmt.Errorf("%s needs an argument", fields[0])
		}
		return fields[1], nil
	}

	switch strings.ToLower(fields[0]) {
	case "start":
		return false, e.Start()
	case "pause":
		return false, e.Pause()
	case "reset":
		s, err := arg()
		if err != nil {
			return false, err
		}
		mode, err := timer.ParseMode(s)
		if err != nil {
			return false, err
		}
		return false, e.Reset(mode)
	case "activity":
		s, err := arg()
		if err != nil {
			return false, err
		}
		a, err := timer.ParseActivity(s)
		if err != nil {
			return false, err
		}
		return false, e.SelectBreakActivity(a)
	case "focus", "break":
		s, err := arg()
		if err != nil {
			return false, err
		}
		minutes, err := strconv.Atoi(s)
		if err != nil {
			return false, fmt.Errorf("invalid minutes %q", s)
		}
		if fields[0] == "focus" {
			return false, e.UpdateFocusDuration(minutes)
		}
		return false, e.UpdateBreakDuration(minutes)
	case "state":
		settings := e.Settings()
		fmt.Fprintf(out, "%s (focus %dm, break %dm)\n", e.State(), settings.FocusDuration, settings.BreakDuration)
		return false, nil
	case "help":
		fmt.Fprint(out, tabCommands)
		return false, nil
	case "quit", "exit":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q (type 'help')", fields[0])
	}
}

// printEvents writes one line per engine event until the channel closes.
// Ticks are printed only on whole minutes to keep the terminal readable.
func printEvents(out io.Writer, events <-chan timer.Event) {
	for ev := range events {
		switch ev.Type {
		case timer.EventTick:
			if ev.State.TimeRemaining%60 != 0 {
				continue
			}
			fmt.Fprintf(out, "  %s\n", ev.State)
		case timer.EventCompleted:
			fmt.Fprintf(out, "* %s session complete, now %s\n", ev.State.Mode.Next(), ev.State)
		case timer.EventSettings:
			fmt.Fprintf(out, "~ settings focus %dm, break %dm%s\n", ev.Settings.FocusDuration, ev.Settings.BreakDuration, peerSuffix(ev.Peer))
		default:
			fmt.Fprintf(out, "> %s%s\n", ev.State, peerSuffix(ev.Peer))
		}
	}
}

func peerSuffix(peer bool) string {
	if peer {
		return " (from another tab)"
	}
	return ""
}
