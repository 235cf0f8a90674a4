package tabsync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/focusflow/host/internal/audio"
	"github.com/focusflow/host/internal/bus"
	"github.com/focusflow/host/internal/config"
	apperrors "github.com/focusflow/host/internal/errors"
	"github.com/focusflow/host/internal/schedule"
	"github.com/focusflow/host/internal/storage"
)

var epoch = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// recordingPlayer counts plays per tab.
type recordingPlayer struct {
	mu    sync.Mutex
	plays []string
	err   error
}

func (p *recordingPlayer) Play(_ context.Context, s audio.Sound) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.plays = append(p.plays, s.Name)
	return s.Duration, nil
}

func (p *recordingPlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.plays)
}

// failingStore fails every operation.
type failingStore struct{ storage.MemoryStore }

func (*failingStore) Put(context.Context, string, []byte) error { return errors.New("disk full") }
func (*failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("disk error")
}
func (*failingStore) Available() bool { return true }

func newTab(store storage.Store, b bus.Bus, clock func() time.Time) *Context {
	tc := NewContext(store, b)
	tc.Clock = clock
	return tc
}

func TestNewContext_UniqueIdentity(t *testing.T) {
	a := NewContext(storage.NewMemoryStore(), bus.NewLocal())
	b := NewContext(storage.NewMemoryStore(), bus.NewLocal())
	if a.TabID == "" || a.TabID == b.TabID {
		t.Errorf("tab ids %q and %q should be distinct and non-empty", a.TabID, b.TabID)
	}
	if !a.Available() {
		t.Error("context with a memory store should be available")
	}
	if Degraded().Available() {
		t.Error("degraded context should not be available")
	}
}

func TestDetect_Standalone(t *testing.T) {
	tc := Detect(context.Background(), &config.Config{Standalone: true})
	if tc.Available() {
		t.Error("standalone Detect should return a degraded context")
	}
}

func TestDetect_NoRelay(t *testing.T) {
	cfg := &config.Config{Store: "memory", RelayAddr: "127.0.0.1:1"}
	tc := Detect(context.Background(), cfg)
	defer tc.Close()
	if tc.Available() {
		t.Error("Detect without a relay should return a degraded context")
	}
}

func TestJSON_RoundTripAndDecodeFailure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	var claim AudioClaim
	found, err := GetJSON(ctx, store, "audio_playing_x", &claim)
	if found || err != nil {
		t.Fatalf("GetJSON on miss = (%v, %v), want (false, nil)", found, err)
	}

	if err := PutJSON(ctx, store, "audio_playing_x", AudioClaim{Playing: true, OwnerTabID: "a"}); err != nil {
		t.Fatalf("PutJSON failed: %v", err)
	}
	found, err = GetJSON(ctx, store, "audio_playing_x", &claim)
	if !found || err != nil || claim.OwnerTabID != "a" {
		t.Errorf("GetJSON = (%v, %v, %+v)", found, err, claim)
	}

	store.Put(ctx, KeyTimerState, []byte("{not json"))
	_, err = GetJSON(ctx, store, KeyTimerState, &claim)
	if !apperrors.IsCode(err, apperrors.CodeStoreDecodeFailed) {
		t.Errorf("GetJSON of malformed value = %v, want store.decode_failed", err)
	}
}

func TestPublish_WritesThenBroadcasts(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	local := bus.NewLocal()
	tab := newTab(store, local, func() time.Time { return epoch })

	var got []bus.Envelope
	local.Subscribe(func(env bus.Envelope) {
		// The write must be visible by the time the envelope arrives.
		if v, _ := store.Get(ctx, env.Key); string(v) != string(env.Value) {
			t.Errorf("store holds %s when envelope carries %s", v, env.Value)
		}
		got = append(got, env)
	})

	if err := NewBroadcaster(tab).Publish(ctx, KeySettings, map[string]int{"focusDuration": 30, "breakDuration": 5}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("envelopes = %d, want 1", len(got))
	}
	env := got[0]
	if env.Kind != bus.KindStateChange || env.Key != KeySettings || env.OriginTabID != tab.TabID {
		t.Errorf("envelope = %+v", env)
	}
	if env.Timestamp != epoch.UnixMilli() {
		t.Errorf("timestamp = %d, want %d", env.Timestamp, epoch.UnixMilli())
	}
}

func TestPublish_SameMillisecondKeepsDistinctIDs(t *testing.T) {
	ctx := context.Background()
	local := bus.NewLocal()
	tab := newTab(storage.NewMemoryStore(), local, func() time.Time { return epoch })

	var ids []string
	local.Subscribe(func(env bus.Envelope) { ids = append(ids, env.ID()) })

	b := NewBroadcaster(tab)
	b.Publish(ctx, KeyTimerState, map[string]bool{"isRunning": false})
	b.Publish(ctx, KeyTimerState, map[string]bool{"isRunning": true})

	if len(ids) != 2 {
		t.Fatalf("envelopes = %d, want 2", len(ids))
	}
	if ids[0] == ids[1] {
		t.Errorf("both envelopes have ID %q", ids[0])
	}
}

func TestPublish_StoreFailureStillBroadcasts(t *testing.T) {
	local := bus.NewLocal()
	tab := newTab(&failingStore{}, local, time.Now)

	delivered := 0
	local.Subscribe(func(bus.Envelope) { delivered++ })

	err := NewBroadcaster(tab).Publish(context.Background(), KeyTimerState, map[string]string{"mode": "focus"})
	if !apperrors.IsCode(err, apperrors.CodeStoreWriteFailed) {
		t.Errorf("Publish = %v, want store.write_failed", err)
	}
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
}

func TestPublish_Degraded(t *testing.T) {
	if err := NewBroadcaster(Degraded()).Publish(context.Background(), KeyTimerState, 1); err != nil {
		t.Errorf("Publish in degraded mode = %v, want nil", err)
	}
}

func TestSubscribe_FiltersOwnOrigin(t *testing.T) {
	local := bus.NewLocal()
	store := storage.NewMemoryStore()
	a := newTab(store, local, time.Now)
	b := newTab(store, local, time.Now)

	var seenByA, seenByB []string
	unsubA := Subscribe(a, func(key string, _ json.RawMessage) { seenByA = append(seenByA, key) })
	defer unsubA()
	unsubB := Subscribe(b, func(key string, _ json.RawMessage) { seenByB = append(seenByB, key) })

	NewBroadcaster(a).Publish(context.Background(), KeyTimerState, 1)

	if len(seenByA) != 0 {
		t.Errorf("tab A received its own envelope: %v", seenByA)
	}
	if len(seenByB) != 1 || seenByB[0] != KeyTimerState {
		t.Errorf("tab B saw %v, want [timer_state]", seenByB)
	}

	unsubB()
	NewBroadcaster(a).Publish(context.Background(), KeyTimerState, 2)
	if len(seenByB) != 1 {
		t.Errorf("tab B received after unsubscribe: %v", seenByB)
	}
}

func TestAudioCoordinator_SingleTabPlaysOnce(t *testing.T) {
	sched := schedule.NewManual(epoch)
	store := storage.NewMemoryStore()
	tab := newTab(store, bus.NewLocal(), sched.Now)
	player := &recordingPlayer{}
	coord := NewAudioCoordinator(tab, player, sched, AudioOptions{})

	played, err := coord.Claim(context.Background(), "break_start", audio.TimeForBreak)
	if err != nil || !played {
		t.Fatalf("Claim = (%v, %v), want (true, nil)", played, err)
	}
	if player.count() != 1 {
		t.Errorf("plays = %d, want 1", player.count())
	}

	var claim AudioClaim
	if found, _ := GetJSON(context.Background(), store, AudioClaimKey("break_start"), &claim); !found || claim.OwnerTabID != tab.TabID {
		t.Errorf("claim = %+v (found %v), want owned by this tab", claim, found)
	}

	// Released after duration + buffer.
	sched.Advance(audio.TimeForBreak.Duration + 499*time.Millisecond)
	if v, _ := store.Get(context.Background(), AudioClaimKey("break_start")); v == nil {
		t.Fatal("claim released early")
	}
	sched.Advance(time.Millisecond)
	if v, _ := store.Get(context.Background(), AudioClaimKey("break_start")); v != nil {
		t.Errorf("claim not released: %s", v)
	}

	// A later legitimate replay is not blocked.
	played, _ = coord.Claim(context.Background(), "break_start", audio.TimeForBreak)
	if !played || player.count() != 2 {
		t.Errorf("replay played=%v plays=%d, want true, 2", played, player.count())
	}
}

func TestAudioCoordinator_LiveForeignClaimBlocks(t *testing.T) {
	sched := schedule.NewManual(epoch)
	store := storage.NewMemoryStore()
	a := newTab(store, bus.NewLocal(), sched.Now)
	b := newTab(store, bus.NewLocal(), sched.Now)
	playerA, playerB := &recordingPlayer{}, &recordingPlayer{}

	NewAudioCoordinator(a, playerA, sched, AudioOptions{}).Claim(context.Background(), "focus_start", audio.TimeForFocus)
	played, err := NewAudioCoordinator(b, playerB, sched, AudioOptions{}).Claim(context.Background(), "focus_start", audio.TimeForFocus)

	if played || err != nil {
		t.Errorf("second Claim = (%v, %v), want (false, nil)", played, err)
	}
	if playerA.count() != 1 || playerB.count() != 0 {
		t.Errorf("plays A=%d B=%d, want 1, 0", playerA.count(), playerB.count())
	}
}

func TestAudioCoordinator_StaleForeignClaimIgnored(t *testing.T) {
	sched := schedule.NewManual(epoch)
	store := storage.NewMemoryStore()
	PutJSON(context.Background(), store, AudioClaimKey("break_start"), AudioClaim{
		Playing:    true,
		Timestamp:  epoch.Add(-2 * time.Minute).UnixMilli(),
		OwnerTabID: "crashed-tab",
	})

	tab := newTab(store, bus.NewLocal(), sched.Now)
	player := &recordingPlayer{}
	played, _ := NewAudioCoordinator(tab, player, sched, AudioOptions{}).Claim(context.Background(), "break_start", audio.TimeForBreak)
	if !played {
		t.Error("stale claim from a dead tab blocked playback")
	}
}

// barrierStore holds each Put until both contenders have written, so both
// re-reads observe the same last writer.
type barrierStore struct {
	*storage.MemoryStore
	mu      sync.Mutex
	arrived sync.WaitGroup
	written sync.WaitGroup
}

func newBarrierStore() *barrierStore {
	s := &barrierStore{MemoryStore: storage.NewMemoryStore()}
	s.arrived.Add(2)
	s.written.Add(2)
	return s
}

func (s *barrierStore) Put(ctx context.Context, key string, value []byte) error {
	s.arrived.Done()
	s.arrived.Wait()
	s.mu.Lock()
	err := s.MemoryStore.Put(ctx, key, value)
	s.mu.Unlock()
	s.written.Done()
	s.written.Wait()
	return err
}

func TestAudioCoordinator_ContendedClaimPlaysOnce(t *testing.T) {
	sched := schedule.NewManual(epoch)
	store := newBarrierStore()
	players := []*recordingPlayer{{}, {}}
	coords := []*AudioCoordinator{
		NewAudioCoordinator(newTab(store, bus.NewLocal(), sched.Now), players[0], sched, AudioOptions{}),
		NewAudioCoordinator(newTab(store, bus.NewLocal(), sched.Now), players[1], sched, AudioOptions{}),
	}

	var wg sync.WaitGroup
	for _, c := range coords {
		wg.Add(1)
		go func(c *AudioCoordinator) {
			defer wg.Done()
			c.Claim(context.Background(), "break_start", audio.TimeForBreak)
		}(c)
	}
	wg.Wait()

	if total := players[0].count() + players[1].count(); total != 1 {
		t.Errorf("total plays = %d, want 1", total)
	}
}

func TestAudioCoordinator_DegradedPlaysLocally(t *testing.T) {
	player := &recordingPlayer{}
	coord := NewAudioCoordinator(Degraded(), player, schedule.NewManual(epoch), AudioOptions{})

	played, err := coord.Claim(context.Background(), "break_start", audio.TimeForBreak)
	if !played || err != nil || player.count() != 1 {
		t.Errorf("Claim = (%v, %v) plays=%d, want local playback", played, err, player.count())
	}
}

func TestAudioCoordinator_StoreErrorPlaysLocally(t *testing.T) {
	player := &recordingPlayer{}
	tab := newTab(&failingStore{}, bus.NewLocal(), time.Now)
	coord := NewAudioCoordinator(tab, player, schedule.NewManual(epoch), AudioOptions{})

	played, err := coord.Claim(context.Background(), "focus_start", audio.TimeForFocus)
	if !played || err != nil || player.count() != 1 {
		t.Errorf("Claim = (%v, %v) plays=%d, want local playback", played, err, player.count())
	}
}

func TestAudioCoordinator_PlayerErrorReleasesClaim(t *testing.T) {
	store := storage.NewMemoryStore()
	tab := newTab(store, bus.NewLocal(), time.Now)
	player := &recordingPlayer{err: errors.New("no device")}
	coord := NewAudioCoordinator(tab, player, schedule.NewManual(epoch), AudioOptions{})

	_, err := coord.Claim(context.Background(), "focus_start", audio.TimeForFocus)
	if !apperrors.IsCode(err, apperrors.CodeAudioPlayFailed) {
		t.Errorf("Claim = %v, want audio.play_failed", err)
	}
	if v, _ := store.Get(context.Background(), AudioClaimKey("focus_start")); v != nil {
		t.Errorf("claim left behind after failed play: %s", v)
	}
}

func TestAudioCoordinator_CloseReleases(t *testing.T) {
	sched := schedule.NewManual(epoch)
	store := storage.NewMemoryStore()
	coord := NewAudioCoordinator(newTab(store, bus.NewLocal(), sched.Now), &recordingPlayer{}, sched, AudioOptions{})

	coord.Claim(context.Background(), "break_start", audio.TimeForBreak)
	coord.Close()

	if v, _ := store.Get(context.Background(), AudioClaimKey("break_start")); v != nil {
		t.Errorf("claim survived Close: %s", v)
	}
	if sched.Pending() != 0 {
		t.Errorf("Pending = %d after Close, want 0", sched.Pending())
	}
}

func TestSweepAudioClaims(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	now := epoch

	PutJSON(ctx, store, AudioClaimKey("fresh"), AudioClaim{Playing: true, Timestamp: now.Add(-10 * time.Second).UnixMilli()})
	PutJSON(ctx, store, AudioClaimKey("stale"), AudioClaim{Playing: true, Timestamp: now.Add(-2 * time.Minute).UnixMilli()})
	store.Put(ctx, AudioClaimKey("garbled"), []byte("{"))
	PutJSON(ctx, store, KeyTimerState, map[string]int{"timeRemaining": 0})

	removed, err := SweepAudioClaims(ctx, store, now, time.Minute)
	if err != nil {
		t.Fatalf("SweepAudioClaims failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	keys, _ := store.Keys(ctx, "")
	want := []string{AudioClaimKey("fresh"), KeyTimerState}
	if len(keys) != 2 || keys[0] != want[0] || keys[1] != want[1] {
		t.Errorf("remaining keys = %v, want %v", keys, want)
	}
}

func TestSweepAudioClaims_Unavailable(t *testing.T) {
	_, err := SweepAudioClaims(context.Background(), storage.Noop{}, epoch, time.Minute)
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	if !apperrors.IsCode(err, apperrors.CodeStoreUnavailable) {
		t.Errorf("code = %s, want store.unavailable", apperrors.GetCode(err))
	}
}
