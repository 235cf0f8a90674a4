// Package audio plays the completion sounds.
//
// The engine never plays audio directly; it asks the coordinator, which asks
// a Player once it holds the claim for an event. A Player only has to start
// playback and report how long the asset runs, so the claim can be released
// after it finishes.
package audio

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Sound is a named asset with a known playback length.
type Sound struct {
	Name     string
	Duration time.Duration
}

var (
	// TimeForBreak plays when a focus session ends.
	TimeForBreak = Sound{Name: "time-for-break", Duration: 3 * time.Second}

	// TimeForFocus plays when a break ends.
	TimeForFocus = Sound{Name: "time-for-focus", Duration: 3 * time.Second}
)

var catalogue = map[string]Sound{
	TimeForBreak.Name: TimeForBreak,
	TimeForFocus.Name: TimeForFocus,
}

// Lookup returns the catalogued sound with the given name.
func Lookup(name string) (Sound, error) {
	s, ok := catalogue[name]
	if !ok {
		return Sound{}, fmt.Errorf("unknown sound %q", name)
	}
	return s, nil
}

// Player starts playback of a sound and returns its duration.
// Play must not block for the length of the sound.
type Player interface {
	Play(ctx context.Context, s Sound) (time.Duration, error)
}

// LogPlayer writes a line instead of making noise. Used by sim and in
// environments with no audio device.
type LogPlayer struct {
	// Prefix is prepended to each line, typically the tab id.
	Prefix string
}

func (p LogPlayer) Play(_ context.Context, s Sound) (time.Duration, error) {
	log.Printf("audio: %splaying %s", p.Prefix, s.Name)
	return s.Duration, nil
}
