package timer

// EventType classifies engine notifications.
type EventType string

const (
	EventState     EventType = "state"     // state replaced by an action, a peer or mount
	EventTick      EventType = "tick"      // one second counted down
	EventCompleted EventType = "completed" // countdown reached zero and the mode flipped
	EventSettings  EventType = "settings"  // durations changed
)

// Event is delivered to observers after every state change.
type Event struct {
	Type     EventType
	State    State
	Settings Settings

	// Peer is true when the change was adopted from another tab.
	Peer bool
}

// Subscribe returns a channel of engine events. Slow observers miss events
// rather than stall the engine. The channel is closed by Close.
func (e *Engine) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	if e.obsClosed {
		close(ch)
		return ch
	}
	e.observers = append(e.observers, ch)
	return ch
}

func (e *Engine) emit(ev Event) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	for _, ch := range e.observers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (e *Engine) closeObservers() {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	if e.obsClosed {
		return
	}
	e.obsClosed = true
	for _, ch := range e.observers {
		close(ch)
	}
	e.observers = nil
}
