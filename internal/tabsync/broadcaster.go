package tabsync

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/focusflow/host/internal/bus"
	apperrors "github.com/focusflow/host/internal/errors"
)

// Broadcaster persists a value and announces the change to other tabs.
type Broadcaster struct {
	tc *Context
}

// NewBroadcaster creates a Broadcaster for tc.
func NewBroadcaster(tc *Context) *Broadcaster {
	return &Broadcaster{tc: tc}
}

// Publish writes value under key, then sends a stateChange envelope. The
// envelope is sent even if the write failed so peers still converge in
// memory. Errors are returned for logging only; there is no retry.
func (b *Broadcaster) Publish(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return apperrors.Internal("encode "+key, err)
	}

	var writeErr error
	if err := b.tc.Store.Put(ctx, key, data); err != nil {
		writeErr = apperrors.StoreWrite(key, err)
		log.Printf("tabsync: %v", writeErr)
	}

	env := bus.Envelope{
		Kind:        bus.KindStateChange,
		Key:         key,
		Value:       data,
		Timestamp:   b.tc.Now().UnixMilli(),
		OriginTabID: b.tc.TabID,
		Seq:         b.tc.NextSeq(),
	}
	var sendErr error
	if err := b.tc.Bus.Send(ctx, env); err != nil {
		if errors.Is(err, bus.ErrNotConnected) {
			sendErr = apperrors.Wrap(apperrors.CodeBusUnavailable, "send "+key, err)
		} else {
			sendErr = apperrors.Wrap(apperrors.CodeBusSendFailed, "send "+key, err)
		}
	}
	return errors.Join(writeErr, sendErr)
}
