package tabsync

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/focusflow/host/internal/audio"
	apperrors "github.com/focusflow/host/internal/errors"
	"github.com/focusflow/host/internal/schedule"
)

// AudioClaim is the record a tab writes before playing an event's sound.
type AudioClaim struct {
	Playing    bool   `json:"playing"`
	Timestamp  int64  `json:"timestamp"` // epoch ms
	OwnerTabID string `json:"ownerTabId"`
}

// AudioOptions tunes claim lifetimes.
type AudioOptions struct {
	// ReleaseBuffer is added to the sound's duration before the claim is
	// deleted. Default 500ms.
	ReleaseBuffer time.Duration

	// StaleAfter bounds how long a foreign claim blocks this tab. Default 1m.
	StaleAfter time.Duration
}

// AudioCoordinator makes a completion sound play in at most one tab.
//
// Claims are last-writer-wins records in the shared store: write, re-read,
// play only if the re-read shows this tab as owner. Without a store every
// tab plays locally.
type AudioCoordinator struct {
	tc     *Context
	player audio.Player
	sched  schedule.Scheduler
	opts   AudioOptions

	mu       sync.Mutex
	releases map[string]schedule.Task
}

// NewAudioCoordinator creates a coordinator for tc.
func NewAudioCoordinator(tc *Context, player audio.Player, sched schedule.Scheduler, opts AudioOptions) *AudioCoordinator {
	if opts.ReleaseBuffer <= 0 {
		opts.ReleaseBuffer = 500 * time.Millisecond
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = time.Minute
	}
	return &AudioCoordinator{
		tc:       tc,
		player:   player,
		sched:    sched,
		opts:     opts,
		releases: make(map[string]schedule.Task),
	}
}

// Claim tries to play sound for eventID. It reports whether this tab played.
func (c *AudioCoordinator) Claim(ctx context.Context, eventID string, sound audio.Sound) (bool, error) {
	if !c.tc.Available() {
		return c.playLocal(ctx, sound)
	}

	key := AudioClaimKey(eventID)
	now := c.tc.Now()

	// A live claim from another tab means the sound is already playing.
	var existing AudioClaim
	found, err := GetJSON(ctx, c.tc.Store, key, &existing)
	if err != nil && !apperrors.IsCode(err, apperrors.CodeStoreDecodeFailed) {
		log.Printf("tabsync: audio claim pre-check for %s failed, playing locally: %v", eventID, err)
		return c.playLocal(ctx, sound)
	}
	if found && existing.Playing && existing.OwnerTabID != c.tc.TabID &&
		now.Sub(time.UnixMilli(existing.Timestamp)) < c.opts.StaleAfter {
		return false, nil
	}

	claim := AudioClaim{Playing: true, Timestamp: now.UnixMilli(), OwnerTabID: c.tc.TabID}
	if err := PutJSON(ctx, c.tc.Store, key, claim); err != nil {
		log.Printf("tabsync: audio claim for %s failed, playing locally: %v", eventID, err)
		return c.playLocal(ctx, sound)
	}

	var current AudioClaim
	found, err = GetJSON(ctx, c.tc.Store, key, &current)
	if err != nil {
		log.Printf("tabsync: audio claim re-read for %s failed, playing locally: %v", eventID, err)
		return c.playLocal(ctx, sound)
	}
	if !found || current.OwnerTabID != c.tc.TabID {
		return false, nil
	}

	d, err := c.player.Play(ctx, sound)
	if err != nil {
		c.release(key)
		return false, apperrors.Wrap(apperrors.CodeAudioPlayFailed, "play "+sound.Name, err)
	}

	c.mu.Lock()
	if prev, ok := c.releases[key]; ok {
		prev.Stop()
	}
	c.releases[key] = c.sched.After(d+c.opts.ReleaseBuffer, func() {
		c.mu.Lock()
		delete(c.releases, key)
		c.mu.Unlock()
		c.release(key)
	})
	c.mu.Unlock()
	return true, nil
}

func (c *AudioCoordinator) playLocal(ctx context.Context, sound audio.Sound) (bool, error) {
	if _, err := c.player.Play(ctx, sound); err != nil {
		return false, apperrors.Wrap(apperrors.CodeAudioPlayFailed, "play "+sound.Name, err)
	}
	return true, nil
}

// release deletes the claim if this tab still owns it.
func (c *AudioCoordinator) release(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var current AudioClaim
	found, err := GetJSON(ctx, c.tc.Store, key, &current)
	if err != nil || !found || current.OwnerTabID != c.tc.TabID {
		return
	}
	if err := c.tc.Store.Delete(ctx, key); err != nil {
		log.Printf("tabsync: release %s: %v", key, err)
	}
}

// Close releases any claims still held.
func (c *AudioCoordinator) Close() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.releases))
	for key, task := range c.releases {
		task.Stop()
		keys = append(keys, key)
	}
	c.releases = make(map[string]schedule.Task)
	c.mu.Unlock()

	for _, key := range keys {
		c.release(key)
	}
}
