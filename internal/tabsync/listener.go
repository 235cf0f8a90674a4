package tabsync

import (
	"encoding/json"

	"github.com/focusflow/host/internal/bus"
)

// Subscribe registers callback for state changes announced by other tabs.
// Envelopes carrying this tab's own identity are ignored. The callback runs
// synchronously on the bus delivery goroutine. The returned function
// deregisters it and must be called on teardown.
func Subscribe(tc *Context, callback func(key string, value json.RawMessage)) (unsubscribe func()) {
	return tc.Bus.Subscribe(func(env bus.Envelope) {
		if env.Kind != bus.KindStateChange || env.OriginTabID == tc.TabID {
			return
		}
		callback(env.Key, env.Value)
	})
}
