// Package strategy defines the kind-dispatch boundary: once an event
// clears admission, persistence is delegated to a kind-specific
// handler this package only names the interface for.
package strategy

import (
	"context"

	"relaycore/core/types"
	"relaycore/transport"
)

// Strategy persists an admitted event and is responsible for emitting
// its own command-result acknowledgement; the pipeline does not emit
// after handing off to one.
type Strategy interface {
	Execute(ctx context.Context, event *types.Event) error
}

// Factory resolves the strategy responsible for an event's kind. A nil
// return means the kind is unsupported.
type Factory interface {
	For(event *types.Event, conn transport.Conn) Strategy
}
