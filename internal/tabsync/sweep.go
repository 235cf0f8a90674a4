package tabsync

import (
	"context"
	"log"
	"time"

	apperrors "github.com/focusflow/host/internal/errors"
	"github.com/focusflow/host/internal/storage"
)

// SweepAudioClaims deletes audio claims older than staleAfter, and any that
// cannot be decoded. It returns the number of records removed.
func SweepAudioClaims(ctx context.Context, store storage.Store, now time.Time, staleAfter time.Duration) (int, error) {
	if !store.Available() {
		return 0, storage.ErrUnavailable
	}

	keys, err := store.Keys(ctx, AudioClaimPrefix)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range keys {
		var claim AudioClaim
		found, err := GetJSON(ctx, store, key, &claim)
		if err != nil && !apperrors.IsCode(err, apperrors.CodeStoreDecodeFailed) {
			return removed, err
		}
		if found && now.Sub(time.UnixMilli(claim.Timestamp)) <= staleAfter {
			continue
		}
		if err != nil {
			log.Printf("tabsync: removing unreadable claim %s: %v", key, err)
		}
		if err := store.Delete(ctx, key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
