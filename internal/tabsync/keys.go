package tabsync

// Store keys shared by every tab and the relay.
const (
	KeyTimerState = "timer_state"
	KeyLastUpdate = "timer_last_update" // epoch milliseconds
	KeySettings   = "settings"

	// AudioClaimPrefix prefixes one ephemeral claim record per audio event.
	AudioClaimPrefix = "audio_playing_"
)

// AudioClaimKey returns the store key guarding eventID.
func AudioClaimKey(eventID string) string {
	return AudioClaimPrefix + eventID
}
