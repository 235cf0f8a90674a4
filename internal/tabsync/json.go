package tabsync

import (
	"context"
	"encoding/json"

	apperrors "github.com/focusflow/host/internal/errors"
	"github.com/focusflow/host/internal/storage"
)

// PutJSON encodes v and writes it under key.
func PutJSON(ctx context.Context, store storage.Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.Internal("encode "+key, err)
	}
	if err := store.Put(ctx, key, data); err != nil {
		return apperrors.StoreWrite(key, err)
	}
	return nil
}

// GetJSON reads key into v. found is false when the key is absent.
// Malformed values return a store.decode_failed error.
func GetJSON(ctx context.Context, store storage.Store, key string, v any) (found bool, err error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		return false, apperrors.StoreRead(key, err)
	}
	if data == nil || string(data) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, apperrors.Decode(key, err)
	}
	return true, nil
}
