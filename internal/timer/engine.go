package timer

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/focusflow/host/internal/audio"
	apperrors "github.com/focusflow/host/internal/errors"
	"github.com/focusflow/host/internal/schedule"
	"github.com/focusflow/host/internal/tabsync"
)

// ErrClosed is returned by actions on a closed engine.
var ErrClosed = errors.New("timer engine closed")

// Options configures an Engine.
type Options struct {
	// Context is the tab this engine runs in. Required.
	Context *tabsync.Context

	// Scheduler arms the countdown loop. Default schedule.System.
	Scheduler schedule.Scheduler

	// Player plays completion sounds. Default audio.LogPlayer.
	Player audio.Player

	// Settings are used until persisted settings are loaded at mount.
	// Zero means DefaultSettings.
	Settings Settings

	// TickInterval is the countdown period. Default 1s.
	TickInterval time.Duration

	// ActivityStartDelay is the pause between choosing a break activity and
	// the automatic start. Default 100ms.
	ActivityStartDelay time.Duration

	Audio tabsync.AudioOptions

	// BreakSound and FocusSound play on entering each mode.
	// Default audio.TimeForBreak and audio.TimeForFocus.
	BreakSound audio.Sound
	FocusSound audio.Sound

	// Debug logs every tick.
	Debug bool
}

// Engine is one tab's copy of the timer.
type Engine struct {
	tc    *tabsync.Context
	sched schedule.Scheduler
	bcast *tabsync.Broadcaster
	coord *tabsync.AudioCoordinator

	tickInterval  time.Duration
	activityDelay time.Duration
	debug         bool
	breakSound    audio.Sound
	focusSound    audio.Sound

	mu       sync.Mutex
	state    State
	settings Settings
	mounted  bool
	closed   bool

	loop    schedule.Task
	loopGen uint64

	// lastPeerRunning is when a running state last arrived from another tab
	// (or, at mount, when the loaded running state was persisted).
	lastPeerRunning time.Time

	pendingStart schedule.Task
	unsubscribe  func()

	pendingState    *pendingWrite
	pendingSettings *Settings
	dirty           chan struct{}
	flushReq        chan chan struct{}
	stopWriter      chan struct{}
	writerDone      chan struct{}

	audioWG sync.WaitGroup

	obsMu     sync.Mutex
	observers []chan Event
	obsClosed bool
}

// New creates an engine and starts its writer. Call Mount before use.
func New(opts Options) *Engine {
	if opts.Scheduler == nil {
		opts.Scheduler = schedule.System{}
	}
	if opts.Player == nil {
		opts.Player = audio.LogPlayer{}
	}
	if opts.Settings == (Settings{}) {
		opts.Settings = DefaultSettings()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.ActivityStartDelay <= 0 {
		opts.ActivityStartDelay = 100 * time.Millisecond
	}
	if opts.BreakSound == (audio.Sound{}) {
		opts.BreakSound = audio.TimeForBreak
	}
	if opts.FocusSound == (audio.Sound{}) {
		opts.FocusSound = audio.TimeForFocus
	}

	e := &Engine{
		tc:            opts.Context,
		sched:         opts.Scheduler,
		bcast:         tabsync.NewBroadcaster(opts.Context),
		coord:         tabsync.NewAudioCoordinator(opts.Context, opts.Player, opts.Scheduler, opts.Audio),
		tickInterval:  opts.TickInterval,
		activityDelay: opts.ActivityStartDelay,
		debug:         opts.Debug,
		breakSound:    opts.BreakSound,
		focusSound:    opts.FocusSound,
		settings:      opts.Settings,
		state:         Fresh(ModeFocus, opts.Settings),
		dirty:         make(chan struct{}, 1),
		flushReq:      make(chan chan struct{}),
		stopWriter:    make(chan struct{}),
		writerDone:    make(chan struct{}),
	}
	go e.runWriter()
	return e
}

// TabID returns the identity of the tab this engine runs in.
func (e *Engine) TabID() string {
	return e.tc.TabID
}

// State returns a snapshot of the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Settings returns a snapshot of the current settings.
func (e *Engine) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// Driving reports whether this tab's countdown loop is armed.
func (e *Engine) Driving() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loop != nil
}

// Mount loads persisted settings and state, reconciles the state against
// the time that passed since it was written, and starts listening to peers.
// Store failures are logged and treated as "nothing persisted".
func (e *Engine) Mount(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.mounted {
		e.mu.Unlock()
		return nil
	}
	settings := e.settings
	e.mu.Unlock()

	store := e.tc.Store

	var storedSettings Settings
	if found, err := tabsync.GetJSON(ctx, store, tabsync.KeySettings, &storedSettings); err != nil {
		log.Printf("timer: load settings: %v", err)
	} else if found {
		if err := storedSettings.Validate(); err != nil {
			log.Printf("timer: ignoring persisted settings: %v", err)
		} else {
			settings = storedSettings
		}
	}

	var loaded State
	var stored *State
	if found, err := tabsync.GetJSON(ctx, store, tabsync.KeyTimerState, &loaded); err != nil {
		log.Printf("timer: load state: %v", err)
	} else if found {
		stored = &loaded
	}

	var lastUpdate time.Time
	var lastMs int64
	if found, err := tabsync.GetJSON(ctx, store, tabsync.KeyLastUpdate, &lastMs); err != nil {
		log.Printf("timer: load last update: %v", err)
	} else if found && lastMs > 0 {
		lastUpdate = time.UnixMilli(lastMs)
	}

	next := Reconcile(stored, lastUpdate, e.sched.Now(), settings)

	unsubscribe := tabsync.Subscribe(e.tc, e.handlePeer)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		unsubscribe()
		return ErrClosed
	}
	e.mounted = true
	e.unsubscribe = unsubscribe
	e.settings = settings
	e.state = next

	if stored == nil || stored.Normalize() != next {
		e.queueState(next)
	}
	if next.IsRunning {
		e.lastPeerRunning = lastUpdate
		e.armLocked()
	}

	log.Printf("timer: tab %s mounted at %s", e.tc.TabID, next)
	e.emit(Event{Type: EventState, State: next, Settings: settings})
	return nil
}

// Start begins counting down. It is a no-op if already running.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.cancelPendingStartLocked()
	if e.state.IsRunning {
		return nil
	}

	if e.state.TimeRemaining <= 0 {
		e.state.TimeRemaining = e.settings.Seconds(e.state.Mode)
	}
	e.state.IsRunning = true
	e.state.Completed = false
	e.lastPeerRunning = time.Time{}
	e.armLocked()
	e.commitLocked(EventState)
	return nil
}

// Pause stops counting down. It is a no-op if not running.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if !e.state.IsRunning {
		return nil
	}

	e.disarmLocked()
	e.state.IsRunning = false
	e.commitLocked(EventState)
	return nil
}

// Reset stops the timer and sets it to the full duration of mode.
func (e *Engine) Reset(mode Mode) error {
	if !mode.Valid() {
		return apperrors.InvalidState("unknown mode " + string(mode))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	e.cancelPendingStartLocked()
	e.disarmLocked()
	e.state = Fresh(mode, e.settings)
	e.commitLocked(EventState)
	return nil
}

// SelectBreakActivity records the break activity. Choosing an activity
// while idle starts the break after a short delay.
func (e *Engine) SelectBreakActivity(a Activity) error {
	if !a.Valid() {
		return apperrors.InvalidState("unknown activity " + string(a))
	}
	if a == "" {
		a = ActivityNone
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if e.state.Mode == ModeFocus && a != ActivityNone {
		return apperrors.New(apperrors.CodeTimerActivityOutsideBreak, "break activity chosen during focus")
	}

	e.state.BreakActivity = a
	e.commitLocked(EventState)

	if a != ActivityNone && !e.state.IsRunning {
		e.cancelPendingStartLocked()
		e.pendingStart = e.sched.After(e.activityDelay, func() {
			if err := e.Start(); err != nil && !errors.Is(err, ErrClosed) {
				log.Printf("timer: auto-start: %v", err)
			}
		})
	}
	return nil
}

// UpdateFocusDuration changes the focus length. The remaining time follows
// immediately only when idle in focus; a running countdown is untouched.
func (e *Engine) UpdateFocusDuration(minutes int) error {
	return e.updateDuration(ModeFocus, minutes)
}

// UpdateBreakDuration changes the break length, like UpdateFocusDuration.
func (e *Engine) UpdateBreakDuration(minutes int) error {
	return e.updateDuration(ModeBreak, minutes)
}

func (e *Engine) updateDuration(mode Mode, minutes int) error {
	if err := validateMinutes(minutes); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	if mode == ModeFocus {
		e.settings.FocusDuration = minutes
	} else {
		e.settings.BreakDuration = minutes
	}
	e.queueSettings(e.settings)

	if !e.state.IsRunning && e.state.Mode == mode {
		e.state.TimeRemaining = minutes * 60
		e.commitLocked(EventState)
		return nil
	}
	e.emit(Event{Type: EventSettings, State: e.state, Settings: e.settings})
	return nil
}

// Close disarms the loop, stops listening, and flushes pending writes.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.cancelPendingStartLocked()
	e.disarmLocked()
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	close(e.stopWriter)
	<-e.writerDone
	e.audioWG.Wait()
	e.coord.Close()
	e.closeObservers()
	return nil
}

// commitLocked queues the current state for persistence and notifies
// observers. Caller holds e.mu.
func (e *Engine) commitLocked(t EventType) {
	e.queueState(e.state)
	e.emit(Event{Type: t, State: e.state, Settings: e.settings})
}

func (e *Engine) armLocked() {
	if e.loop != nil {
		return
	}
	e.loopGen++
	gen := e.loopGen
	e.loop = e.sched.Every(e.tickInterval, func() { e.tick(gen) })
}

func (e *Engine) disarmLocked() {
	if e.loop != nil {
		e.loop.Stop()
		e.loop = nil
	}
}

func (e *Engine) cancelPendingStartLocked() {
	if e.pendingStart != nil {
		e.pendingStart.Stop()
		e.pendingStart = nil
	}
}

// tick counts down one interval. gen identifies the loop that armed it so a
// tick from a replaced loop is ignored.
func (e *Engine) tick(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.loop == nil || gen != e.loopGen || !e.state.IsRunning {
		return
	}

	// A running peer reported within the last interval is driving.
	now := e.sched.Now()
	if !e.lastPeerRunning.IsZero() && now.Sub(e.lastPeerRunning) < e.tickInterval {
		if e.debug {
			log.Printf("timer: tab %s standing by", e.tc.TabID)
		}
		return
	}

	if e.state.TimeRemaining > 1 {
		e.state.TimeRemaining--
		e.state.Completed = false
		if e.debug {
			log.Printf("timer: tab %s tick %s", e.tc.TabID, e.state)
		}
		e.commitLocked(EventTick)
		return
	}

	e.disarmLocked()
	next := completedInto(e.state.Mode.Next(), e.settings)
	e.state = next
	log.Printf("timer: tab %s completed, now %s", e.tc.TabID, next)
	e.commitLocked(EventCompleted)
	e.announceLocked(next.Mode)
}

// handlePeer is the listener callback for envelopes from other tabs.
func (e *Engine) handlePeer(key string, value json.RawMessage) {
	switch key {
	case tabsync.KeyTimerState:
		e.adoptState(value)
	case tabsync.KeySettings:
		e.adoptSettings(value)
	}
}

func (e *Engine) adoptState(value json.RawMessage) {
	var incoming State
	if err := json.Unmarshal(value, &incoming); err != nil {
		log.Printf("timer: dropping peer state: %v", apperrors.Decode(tabsync.KeyTimerState, err))
		return
	}
	incoming = incoming.Normalize()
	if err := incoming.Validate(); err != nil {
		log.Printf("timer: dropping peer state: %v", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	prev := e.state
	e.state = incoming
	if incoming.IsRunning {
		e.lastPeerRunning = e.sched.Now()
		e.armLocked()
	} else {
		e.lastPeerRunning = time.Time{}
		e.disarmLocked()
	}
	e.emit(Event{Type: EventState, State: incoming, Settings: e.settings, Peer: true})

	if incoming.Completed && !(prev.Completed && prev.Mode == incoming.Mode) {
		e.announceLocked(incoming.Mode)
	}
}

func (e *Engine) adoptSettings(value json.RawMessage) {
	var incoming Settings
	if err := json.Unmarshal(value, &incoming); err != nil {
		log.Printf("timer: dropping peer settings: %v", apperrors.Decode(tabsync.KeySettings, err))
		return
	}
	if err := incoming.Validate(); err != nil {
		log.Printf("timer: dropping peer settings: %v", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.settings = incoming
	e.emit(Event{Type: EventSettings, State: e.state, Settings: incoming, Peer: true})
}

// completionSound maps the mode being entered to its audio event.
func (e *Engine) completionSound(entered Mode) (eventID string, sound audio.Sound) {
	if entered == ModeBreak {
		return "break_start", e.breakSound
	}
	return "focus_start", e.focusSound
}

// announceLocked plays the sound for entering mode through the coordinator,
// off the engine lock. Caller holds e.mu.
func (e *Engine) announceLocked(entered Mode) {
	eventID, sound := e.completionSound(entered)
	e.audioWG.Add(1)
	go func() {
		defer e.audioWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		played, err := e.coord.Claim(ctx, eventID, sound)
		if err != nil {
			log.Printf("timer: audio %s: %v", eventID, err)
			return
		}
		if played {
			log.Printf("timer: tab %s played %s", e.tc.TabID, sound.Name)
		}
	}()
}
