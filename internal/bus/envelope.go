// Package bus carries state-change envelopes between tabs.
//
// Three implementations satisfy Bus:
//   - Local: an in-process hub; every subscriber sees every envelope,
//     including the sender's own.
//   - Client: a websocket connection to the relay, reconnecting with
//     exponential back-off.
//   - Noop: drops everything; used in degraded mode.
//
// Delivery is best-effort. Nothing is queued while disconnected.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/focusflow/host/internal/errors"
)

// KindStateChange is the only envelope kind on the bus.
const KindStateChange = "stateChange"

var (
	// ErrNotConnected is returned by Client.Send while the relay is unreachable.
	ErrNotConnected = errors.New("bus not connected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("bus closed")
)

// Envelope announces that a store key changed.
type Envelope struct {
	Kind        string          `json:"kind"`
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	Timestamp   int64           `json:"timestamp"` // epoch ms at the sender
	OriginTabID string          `json:"originTabId"`

	// Seq increases with every envelope a tab sends, so two distinct
	// changes stamped in the same millisecond keep distinct IDs.
	Seq uint64 `json:"seq,omitempty"`
}

// Bus is the contract shared by every transport.
type Bus interface {
	// Send publishes env to other tabs.
	Send(ctx context.Context, env Envelope) error

	// Subscribe registers fn for every received envelope. fn must not block.
	Subscribe(fn func(Envelope)) (unsubscribe func())

	Close() error
}

// Validate checks the fields every receiver relies on.
func (e Envelope) Validate() error {
	switch {
	case e.Kind != KindStateChange:
		return apperrors.InvalidEnvelope(fmt.Sprintf("unknown kind %q", e.Kind))
	case e.Key == "":
		return apperrors.InvalidEnvelope("missing key")
	case e.OriginTabID == "":
		return apperrors.InvalidEnvelope("missing originTabId")
	}
	return nil
}

// ID identifies an envelope for duplicate suppression.
func (e Envelope) ID() string {
	return fmt.Sprintf("%s-%s-%s-%d-%d", e.Kind, e.Key, e.OriginTabID, e.Timestamp, e.Seq)
}
