// Package timer implements the replicated focus/break countdown.
//
// Every tab runs its own Engine. Local actions mutate the engine's state and
// are persisted and broadcast; states received from peers replace the local
// state wholesale. Whichever tabs have a countdown loop armed drive the
// timer, and an armed tab that is hearing a running peer stands by instead
// of decrementing a second time.
package timer

import (
	"fmt"

	apperrors "github.com/focusflow/host/internal/errors"
)

// Mode is the active phase.
type Mode string

const (
	ModeFocus Mode = "focus"
	ModeBreak Mode = "break"
)

// Next returns the phase that follows m.
func (m Mode) Next() Mode {
	if m == ModeFocus {
		return ModeBreak
	}
	return ModeFocus
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeFocus || m == ModeBreak
}

// ParseMode parses "focus" or "break".
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown mode %q", s)
	}
	return m, nil
}

// Activity is what the user chose to do during a break.
type Activity string

const (
	ActivityNone  Activity = "none"
	ActivityGame  Activity = "game"
	ActivityRelax Activity = "relax"
)

// Valid reports whether a is a known activity. The empty string is accepted
// as none.
func (a Activity) Valid() bool {
	switch a {
	case "", ActivityNone, ActivityGame, ActivityRelax:
		return true
	}
	return false
}

// ParseActivity parses "none", "game" or "relax".
func ParseActivity(s string) (Activity, error) {
	a := Activity(s)
	if s == "" || !a.Valid() {
		return "", fmt.Errorf("unknown activity %q", s)
	}
	return a, nil
}

// State is the value replicated across tabs under the timer_state key.
type State struct {
	Mode          Mode     `json:"mode"`
	TimeRemaining int      `json:"timeRemaining"` // seconds
	IsRunning     bool     `json:"isRunning"`
	BreakActivity Activity `json:"breakActivity"`

	// Completed is set on the single transition where a countdown reached
	// zero and the mode flipped.
	Completed bool `json:"completed"`
}

// Normalize maps an absent activity to none.
func (s State) Normalize() State {
	if s.BreakActivity == "" {
		s.BreakActivity = ActivityNone
	}
	return s
}

// Validate checks the invariants every reachable state satisfies.
func (s State) Validate() error {
	switch {
	case !s.Mode.Valid():
		return apperrors.InvalidState(fmt.Sprintf("unknown mode %q", s.Mode))
	case s.TimeRemaining < 0:
		return apperrors.InvalidState(fmt.Sprintf("negative timeRemaining %d", s.TimeRemaining))
	case !s.BreakActivity.Valid():
		return apperrors.InvalidState(fmt.Sprintf("unknown breakActivity %q", s.BreakActivity))
	case s.Mode == ModeFocus && s.BreakActivity != "" && s.BreakActivity != ActivityNone:
		return apperrors.InvalidState("breakActivity set during focus")
	case s.IsRunning && s.TimeRemaining == 0:
		return apperrors.InvalidState("running with no time remaining")
	}
	return nil
}

// String renders the state for logs and the CLI.
func (s State) String() string {
	status := "idle"
	if s.IsRunning {
		status = "running"
	}
	out := fmt.Sprintf("%s.%s %02d:%02d", s.Mode, status, s.TimeRemaining/60, s.TimeRemaining%60)
	if s.Mode == ModeBreak && s.BreakActivity != ActivityNone && s.BreakActivity != "" {
		out += " activity=" + string(s.BreakActivity)
	}
	if s.Completed {
		out += " completed"
	}
	return out
}

// Duration bounds, in minutes.
const (
	MinDurationMinutes = 1
	MaxDurationMinutes = 180
)

// Settings are the user's configured phase lengths, in minutes.
type Settings struct {
	FocusDuration int `json:"focusDuration"`
	BreakDuration int `json:"breakDuration"`
}

// DefaultSettings returns 25/5.
func DefaultSettings() Settings {
	return Settings{FocusDuration: 25, BreakDuration: 5}
}

// Validate checks both durations are within bounds.
func (s Settings) Validate() error {
	if err := validateMinutes(s.FocusDuration); err != nil {
		return err
	}
	return validateMinutes(s.BreakDuration)
}

func validateMinutes(minutes int) error {
	if minutes < MinDurationMinutes || minutes > MaxDurationMinutes {
		return apperrors.InvalidDuration(minutes, MinDurationMinutes, MaxDurationMinutes)
	}
	return nil
}

// Seconds returns the full duration of mode in seconds.
func (s Settings) Seconds(m Mode) int {
	if m == ModeBreak {
		return s.BreakDuration * 60
	}
	return s.FocusDuration * 60
}

// Fresh returns an idle state at the start of mode.
func Fresh(mode Mode, settings Settings) State {
	return State{
		Mode:          mode,
		TimeRemaining: settings.Seconds(mode),
		BreakActivity: ActivityNone,
	}
}

// completedInto returns the state produced when a countdown in the other
// mode reaches zero.
func completedInto(mode Mode, settings Settings) State {
	s := Fresh(mode, settings)
	s.Completed = true
	return s
}
