// Package tabsync is the replication layer each tab runs on: an identity,
// a handle on the shared store and a handle on the bus, plus the broadcaster,
// listener and audio coordinator built on top of them.
//
// A Context is constructed once per tab and passed to everything that needs
// it. There is no package-level state.
package tabsync

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/focusflow/host/internal/bus"
	"github.com/focusflow/host/internal/config"
	"github.com/focusflow/host/internal/storage"
)

// Context binds a tab identity to its store and bus.
type Context struct {
	TabID string
	Store storage.Store
	Bus   bus.Bus

	// Clock supplies envelope and claim timestamps. Defaults to time.Now.
	Clock func() time.Time

	seq atomic.Uint64
}

// NewContext creates a Context with a fresh random tab identity.
func NewContext(store storage.Store, b bus.Bus) *Context {
	return &Context{
		TabID: uuid.NewString(),
		Store: store,
		Bus:   b,
		Clock: time.Now,
	}
}

// Degraded returns a Context whose store and bus are permanent no-ops.
func Degraded() *Context {
	return NewContext(storage.Noop{}, bus.Noop{})
}

// Available reports whether this tab is running inside the host.
func (c *Context) Available() bool {
	return c.Store.Available()
}

// Now returns the current time from Clock.
func (c *Context) Now() time.Time {
	if c.Clock == nil {
		return time.Now()
	}
	return c.Clock()
}

// NextSeq returns the next envelope sequence number for this tab, starting at 1.
func (c *Context) NextSeq() uint64 {
	return c.seq.Add(1)
}

// Close releases the bus and the store.
func (c *Context) Close() error {
	return errors.Join(c.Bus.Close(), c.Store.Close())
}

// Detect performs the one-time host check. When the store opens and the relay
// answers, it returns a connected Context; otherwise a degraded one. Detect
// never fails: degraded mode is the fallback for every error.
func Detect(ctx context.Context, cfg *config.Config) *Context {
	if cfg.Standalone {
		log.Printf("tabsync: standalone mode, running without store or relay")
		return Degraded()
	}

	store, err := storage.Open(cfg.Store, cfg.StorePath)
	if err != nil {
		log.Printf("tabsync: store unavailable, running degraded: %v", err)
		return Degraded()
	}

	if err := bus.Probe(ctx, cfg.RelayAddr); err != nil {
		log.Printf("tabsync: relay unavailable, running degraded: %v", err)
		store.Close()
		return Degraded()
	}

	tc := NewContext(store, nil)
	tc.Bus = bus.Dial(cfg.RelayAddr, tc.TabID, bus.ClientOptions{})
	log.Printf("tabsync: tab %s connected to relay %s", tc.TabID, cfg.RelayAddr)
	return tc
}
