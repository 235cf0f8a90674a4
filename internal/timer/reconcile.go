package timer

import "time"

// Reconcile computes the state a tab should adopt at mount from what it
// loaded. stored is nil when nothing usable was persisted; lastUpdate is
// the zero time when no timestamp was persisted.
//
// A running state is advanced by the whole seconds elapsed since
// lastUpdate. If that exhausts it, the mode flips once and the result is an
// idle, completed state in the next mode. A completed break that was
// persisted as such falls forward to a fresh focus.
func Reconcile(stored *State, lastUpdate, now time.Time, settings Settings) State {
	if stored == nil {
		return Fresh(ModeFocus, settings)
	}
	s := stored.Normalize()
	if err := s.Validate(); err != nil {
		return Fresh(ModeFocus, settings)
	}

	if s.IsRunning {
		if lastUpdate.IsZero() {
			return Fresh(ModeFocus, settings)
		}
		elapsed := int(now.Sub(lastUpdate) / time.Second)
		if elapsed < 0 {
			elapsed = 0
		}
		remaining := s.TimeRemaining - elapsed
		if remaining <= 0 {
			return completedInto(s.Mode.Next(), settings)
		}
		s.TimeRemaining = remaining
		return s
	}

	if s.Mode == ModeBreak && s.Completed {
		return Fresh(ModeFocus, settings)
	}
	return s
}
