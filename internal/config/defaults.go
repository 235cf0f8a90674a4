package config

import "time"

// DefaultRelayAddr is the default listen address for the relay daemon.
const DefaultRelayAddr = "127.0.0.1:7171"

// DefaultStore is the default store backend.
const DefaultStore = "sqlite"

// Default timer durations, in minutes.
const (
	DefaultFocusMinutes = 25
	DefaultBreakMinutes = 5
)

// Default completion sounds.
const (
	DefaultBreakSound = "time-for-break"
	DefaultFocusSound = "time-for-focus"
)

const (
	defaultTickMs               = 1000
	defaultAudioReleaseBufferMs = 500
	defaultClaimStaleAfterS     = 60
	defaultSweepIntervalS       = 300
	defaultDuplicateWindowMs    = 2000
)

// TickInterval returns the countdown tick interval.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

// AudioReleaseBuffer returns how long past the sound's duration a claim is kept.
func (c *Config) AudioReleaseBuffer() time.Duration {
	return time.Duration(c.AudioReleaseBufferMs) * time.Millisecond
}

// ClaimStaleAfter returns the age after which an audio claim is considered abandoned.
func (c *Config) ClaimStaleAfter() time.Duration {
	return time.Duration(c.ClaimStaleAfterS) * time.Second
}

// SweepInterval returns how often the relay sweeps abandoned audio claims.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalS) * time.Second
}

// DuplicateWindow returns how long the relay remembers a relayed message id.
func (c *Config) DuplicateWindow() time.Duration {
	return time.Duration(c.DuplicateWindowMs) * time.Millisecond
}
