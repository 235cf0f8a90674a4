package bus

import (
	"context"
	"sort"
	"sync"
)

// Local is an in-process Bus. Send delivers synchronously on the caller's
// goroutine to every current subscriber.
type Local struct {
	mu     sync.RWMutex
	subs   map[int]func(Envelope)
	nextID int
	closed bool
}

// NewLocal creates an empty in-process bus.
func NewLocal() *Local {
	return &Local{subs: make(map[int]func(Envelope))}
}

func (l *Local) Send(_ context.Context, env Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}

	// Snapshot so subscribers can unsubscribe from inside a callback.
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return ErrClosed
	}
	ids := make([]int, 0, len(l.subs))
	for id := range l.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Envelope), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, l.subs[id])
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(env)
	}
	return nil
}

func (l *Local) Subscribe(fn func(Envelope)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
		})
	}
}

// Subscribers reports the number of registered callbacks.
func (l *Local) Subscribers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.subs)
}

func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.subs = make(map[int]func(Envelope))
	return nil
}
