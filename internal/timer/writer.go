package timer

import (
	"context"
	"log"
	"time"

	"github.com/focusflow/host/internal/tabsync"
)

// pendingWrite is the latest unpersisted state and when it was produced.
type pendingWrite struct {
	state State
	at    time.Time
}

// Persistence runs on one goroutine per engine. Mutations only record the
// latest value and signal; the writer publishes whatever is newest. Every
// write is a full replace, so skipping intermediate values is safe.

// queueState records s for persistence. Caller holds e.mu.
func (e *Engine) queueState(s State) {
	e.pendingState = &pendingWrite{state: s, at: e.sched.Now()}
	e.signal()
}

// queueSettings records s for persistence. Caller holds e.mu.
func (e *Engine) queueSettings(s Settings) {
	e.pendingSettings = &s
	e.signal()
}

func (e *Engine) signal() {
	select {
	case e.dirty <- struct{}{}:
	default:
	}
}

func (e *Engine) runWriter() {
	defer close(e.writerDone)
	for {
		select {
		case <-e.dirty:
			e.writePending()
		case done := <-e.flushReq:
			e.writePending()
			close(done)
		case <-e.stopWriter:
			e.writePending()
			return
		}
	}
}

func (e *Engine) writePending() {
	e.mu.Lock()
	st, settings := e.pendingState, e.pendingSettings
	e.pendingState, e.pendingSettings = nil, nil
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if settings != nil {
		if err := e.bcast.Publish(ctx, tabsync.KeySettings, *settings); err != nil {
			log.Printf("timer: publish settings: %v", err)
		}
	}
	if st != nil {
		if err := e.bcast.Publish(ctx, tabsync.KeyTimerState, st.state); err != nil {
			log.Printf("timer: publish state: %v", err)
		}
		if err := tabsync.PutJSON(ctx, e.tc.Store, tabsync.KeyLastUpdate, st.at.UnixMilli()); err != nil {
			log.Printf("timer: record last update: %v", err)
		}
	}
}

// Flush blocks until every state queued before the call is persisted and
// broadcast.
func (e *Engine) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case e.flushReq <- done:
	case <-e.writerDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
