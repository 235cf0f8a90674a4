// Package schedule abstracts the timers the engine arms: a repeating tick
// and one-shot delays. System uses the runtime clock; Manual advances
// virtual time on demand so tests drive ticks deterministically.
package schedule

import (
	"sync"
	"time"
)

// Task is a cancellable scheduled callback.
type Task interface {
	// Stop cancels the task. Stopping twice is harmless. A callback already
	// running is not interrupted.
	Stop()
}

// Scheduler arms callbacks against a clock.
type Scheduler interface {
	Now() time.Time
	Every(interval time.Duration, fn func()) Task
	After(delay time.Duration, fn func()) Task
}

// System is the wall-clock Scheduler.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time { return time.Now() }

// Every runs fn on its own goroutine once per interval until stopped.
func (System) Every(interval time.Duration, fn func()) Task {
	t := &tickerTask{stopCh: make(chan struct{})}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-t.stopCh:
				return
			case <-ticker.C:
				// Stop may have raced the tick.
				select {
				case <-t.stopCh:
					return
				default:
				}
				fn()
			}
		}
	}()
	return t
}

// After runs fn once after delay.
func (System) After(delay time.Duration, fn func()) Task {
	return &timerTask{timer: time.AfterFunc(delay, fn)}
}

type tickerTask struct {
	once   sync.Once
	stopCh chan struct{}
}

func (t *tickerTask) Stop() {
	t.once.Do(func() { close(t.stopCh) })
}

type timerTask struct {
	timer *time.Timer
}

func (t *timerTask) Stop() {
	t.timer.Stop()
}
