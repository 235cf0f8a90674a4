package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/focusflow/host/internal/audio"
	"github.com/focusflow/host/internal/config"
	apperrors "github.com/focusflow/host/internal/errors"
	"github.com/focusflow/host/internal/schedule"
	"github.com/focusflow/host/internal/tabsync"
	"github.com/focusflow/host/internal/timer"
)

func standaloneEngine(t *testing.T) (*timer.Engine, *schedule.Manual) {
	t.Helper()
	cfg := &config.Config{Store: "memory"}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatal(err)
	}
	sched := schedule.NewManual(time.Unix(1_700_000_000, 0))
	e, err := newEngine(cfg, tabsync.Degraded(), sched, audio.LogPlayer{})
	if err != nil {
		t.Fatalf("newEngine failed: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	if err := e.Mount(t.Context()); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	return e, sched
}

func TestExecTabCommand(t *testing.T) {
	e, sched := standaloneEngine(t)
	var out bytes.Buffer

	steps := []struct {
		line string
		want timer.State
	}{
		{"", timer.State{Mode: timer.ModeFocus, TimeRemaining: 1500, BreakActivity: timer.ActivityNone}},
		{"focus 30", timer.State{Mode: timer.ModeFocus, TimeRemaining: 1800, BreakActivity: timer.ActivityNone}},
		{"start", timer.State{Mode: timer.ModeFocus, TimeRemaining: 1800, IsRunning: true, BreakActivity: timer.ActivityNone}},
		{"pause", timer.State{Mode: timer.ModeFocus, TimeRemaining: 1797, BreakActivity: timer.ActivityNone}},
		{"reset break", timer.State{Mode: timer.ModeBreak, TimeRemaining: 300, BreakActivity: timer.ActivityNone}},
		{"break 10", timer.State{Mode: timer.ModeBreak, TimeRemaining: 600, BreakActivity: timer.ActivityNone}},
		{"activity relax", timer.State{Mode: timer.ModeBreak, TimeRemaining: 600, BreakActivity: timer.ActivityRelax}},
	}

	for _, step := range steps {
		quit, err := execTabCommand(e, step.line, &out)
		if err != nil || quit {
			t.Fatalf("%q: quit=%v err=%v", step.line, quit, err)
		}
		if got := e.State(); got != step.want {
			t.Errorf("after %q: state = %s, want %s", step.line, got, step.want)
		}
		if step.line == "start" {
			for range 3 {
				sched.Advance(time.Second)
			}
		}
	}

	// The activity choice starts the break after a short delay.
	sched.Advance(100 * time.Millisecond)
	if !e.State().IsRunning {
		t.Errorf("break did not auto-start: %s", e.State())
	}

	out.Reset()
	if _, err := execTabCommand(e, "state", &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "break.running 10:00 activity=relax (focus 30m, break 10m)") {
		t.Errorf("state output = %q", out.String())
	}
}

func TestExecTabCommand_Errors(t *testing.T) {
	e, _ := standaloneEngine(t)
	var out bytes.Buffer

	tests := []struct {
		line string
		code string
	}{
		{"focus 0", apperrors.CodeTimerInvalidDuration},
		{"break 181", apperrors.CodeTimerInvalidDuration},
		{"activity game", apperrors.CodeTimerActivityOutsideBreak},
	}
	for _, tt := range tests {
		_, err := execTabCommand(e, tt.line, &out)
		if !apperrors.IsCode(err, tt.code) {
			t.Errorf("%q: err = %v, want %s", tt.line, err, tt.code)
		}
	}

	for _, line := range []string{"reset", "reset lunch", "activity nap", "focus ten", "dance"} {
		if _, err := execTabCommand(e, line, &out); err == nil {
			t.Errorf("%q: expected an error", line)
		}
	}

	if quit, _ := execTabCommand(e, "quit", &out); !quit {
		t.Error("quit should end the session")
	}
}

func TestNewEngine_UnknownSound(t *testing.T) {
	cfg := &config.Config{Store: "memory", FocusSound: "airhorn"}
	if err := cfg.ApplyDefaults(); err != nil {
		t.Fatal(err)
	}
	_, err := newEngine(cfg, tabsync.Degraded(), schedule.NewManual(time.Unix(0, 0)), audio.LogPlayer{})
	if err == nil || !strings.Contains(err.Error(), "focus_sound") {
		t.Errorf("newEngine err = %v, want focus_sound error", err)
	}
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{apperrors.InvalidDuration(0, 1, 180), "Error: duration 0 minutes outside [1, 180] [timer.invalid_duration]"},
		{errors.New(`unknown command "dance"`), `Error: unknown command "dance"`},
	}
	for _, tt := range tests {
		if got := describeError(tt.err); got != tt.want {
			t.Errorf("describeError(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestPrintEvents(t *testing.T) {
	events := make(chan timer.Event, 8)
	running := timer.State{Mode: timer.ModeFocus, TimeRemaining: 1499, IsRunning: true, BreakActivity: timer.ActivityNone}
	events <- timer.Event{Type: timer.EventTick, State: running}
	running.TimeRemaining = 1440
	events <- timer.Event{Type: timer.EventTick, State: running}
	events <- timer.Event{Type: timer.EventCompleted, State: timer.State{Mode: timer.ModeBreak, TimeRemaining: 300, BreakActivity: timer.ActivityNone, Completed: true}}
	events <- timer.Event{Type: timer.EventSettings, Settings: timer.Settings{FocusDuration: 50, BreakDuration: 10}, Peer: true}
	close(events)

	var out bytes.Buffer
	printEvents(&out, events)
	got := out.String()

	if strings.Contains(got, "24:59") {
		t.Errorf("off-minute tick printed: %q", got)
	}
	for _, want := range []string{
		"focus.running 24:00",
		"* focus session complete, now break.idle 05:00 completed",
		"~ settings focus 50m, break 10m (from another tab)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q missing %q", got, want)
		}
	}
}

func TestRunTab_Standalone(t *testing.T) {
	script := "focus 30\nstate\nnonsense\nquit\n"
	code, out, errOut := runWithArgs(t, []string{"focusflow", "tab", "--standalone", "--store", "memory"}, script)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr %q", code, errOut)
	}
	for _, want := range []string{
		"(standalone)",
		"focus.idle 30:00 (focus 30m, break 5m)",
		`Error: unknown command "nonsense"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}
