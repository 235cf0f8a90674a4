// Package relay is the long-lived background process every tab connects to.
//
// A tab dials /ws?tab=<id> and sends stateChange envelopes. The relay
// forwards each one to every other connected tab and never back to the
// sender. Repeats of the same envelope within the duplicate window are
// dropped, as are envelopes from a tab exceeding its rate budget.
//
// The relay also owns the store-side housekeeping: seeding default settings
// on first start and sweeping stale audio claims.
package relay

import (
	"context"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/focusflow/host/internal/storage"
	"github.com/focusflow/host/internal/tabsync"
	"github.com/focusflow/host/internal/timer"
)

// tabBufferSize is the per-tab outbound queue. A tab that falls this far
// behind misses envelopes rather than stalling the relay.
const tabBufferSize = 64

// Options configures a Server.
type Options struct {
	// Addr is the listen address, e.g. "127.0.0.1:7171".
	Addr string

	// Store is the shared store. Noop disables seeding and sweeping.
	Store storage.Store

	// DefaultSettings are written on start when none are persisted.
	DefaultSettings timer.Settings

	// DuplicateWindow is how long an envelope id is remembered. Default 2s.
	DuplicateWindow time.Duration

	// SweepInterval is the audio-claim sweep period. Default 5m.
	SweepInterval time.Duration

	// ClaimStaleAfter is the age at which an audio claim is swept. Default 1m.
	ClaimStaleAfter time.Duration

	// RateLimit and RateBurst bound each tab's inbound envelopes.
	// Defaults 50/s and 20.
	RateLimit float64
	RateBurst int
}

// Server relays envelopes between connected tabs.
type Server struct {
	addr     string
	opts     Options
	upgrader websocket.Upgrader

	// mu protects tabs, listenAddr and stopped.
	mu         sync.RWMutex
	tabs       map[*tab]bool
	listenAddr string
	stopped    bool

	dedupe *dedupeCache

	relayed     atomic.Int64
	duplicates  atomic.Int64
	rateLimited atomic.Int64

	httpServer *http.Server
	startTime  time.Time

	prepareOnce sync.Once
	stopSweep   chan struct{}
	sweepDone   chan struct{}
}

// New creates a Server. Call StartAsync to begin listening.
func New(opts Options) *Server {
	if opts.Store == nil {
		opts.Store = storage.Noop{}
	}
	if opts.DefaultSettings == (timer.Settings{}) {
		opts.DefaultSettings = timer.DefaultSettings()
	}
	if opts.DuplicateWindow <= 0 {
		opts.DuplicateWindow = 2 * time.Second
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Minute
	}
	if opts.ClaimStaleAfter <= 0 {
		opts.ClaimStaleAfter = time.Minute
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 50
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 20
	}

	return &Server{
		addr: opts.Addr,
		opts: opts,
		upgrader: websocket.Upgrader{
			// Tabs are local processes, not browsers.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		tabs:      make(map[*tab]bool),
		dedupe:    newDedupeCache(opts.DuplicateWindow, time.Now),
		startTime: time.Now(),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
}

// Addr returns the address the server is listening on, or the configured
// address before it starts.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listenAddr != "" {
		return s.listenAddr
	}
	return s.addr
}

// TabCount returns the number of connected tabs.
func (s *Server) TabCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tabs)
}

// Handler returns the relay's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.Handle("/status", NewStatusHandler(s))
	return mux
}

// Prepare seeds default settings if none are persisted and starts the claim
// sweeper. StartAsync calls it; tests that mount Handler directly call it
// themselves.
func (s *Server) Prepare(ctx context.Context) {
	s.prepareOnce.Do(func() {
		if !s.opts.Store.Available() {
			close(s.sweepDone)
			return
		}
		s.seedSettings(ctx)
		go s.runSweeper()
	})
}

func (s *Server) seedSettings(ctx context.Context) {
	var existing timer.Settings
	found, err := tabsync.GetJSON(ctx, s.opts.Store, tabsync.KeySettings, &existing)
	if err != nil {
		log.Printf("relay: read settings: %v", err)
	}
	if found {
		return
	}
	if err := tabsync.PutJSON(ctx, s.opts.Store, tabsync.KeySettings, s.opts.DefaultSettings); err != nil {
		log.Printf("relay: seed settings: %v", err)
		return
	}
	log.Printf("relay: seeded default settings %d/%d", s.opts.DefaultSettings.FocusDuration, s.opts.DefaultSettings.BreakDuration)
}

func (s *Server) runSweeper() {
	defer close(s.sweepDone)
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Server) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	removed, err := tabsync.SweepAudioClaims(ctx, s.opts.Store, time.Now(), s.opts.ClaimStaleAfter)
	if err != nil {
		log.Printf("relay: sweep audio claims: %v", err)
		return
	}
	if removed > 0 {
		log.Printf("relay: swept %d stale audio claims", removed)
	}
}

// handleWebSocket upgrades a tab's connection and starts its pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	tabID := r.URL.Query().Get("tab")
	if tabID == "" {
		http.Error(w, "missing tab parameter", http.StatusBadRequest)
		return
	}

	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		http.Error(w, "relay stopping", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("relay: upgrade failed: %v", err)
		return
	}

	t := newTab(s, conn, tabID)
	s.mu.Lock()
	s.tabs[t] = true
	s.mu.Unlock()
	log.Printf("relay: tab %s connected (%d total)", tabID, s.TabCount())

	go t.writePump()
	go t.readPump()
}

// forward sends raw to every tab except from. Slow tabs are skipped.
func (s *Server) forward(from *tab, raw []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for t := range s.tabs {
		if t == from {
			continue
		}
		select {
		case <-t.done:
		case t.send <- raw:
		default:
			log.Printf("relay: tab %s send buffer full, dropping envelope", t.id)
		}
	}
	s.relayed.Add(1)
}

func (s *Server) removeTab(t *tab) {
	s.mu.Lock()
	delete(s.tabs, t)
	s.mu.Unlock()
}
