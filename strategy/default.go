package strategy

import (
	"context"

	"relaycore/core/types"
	"relaycore/emitter"
	"relaycore/transport"
)

// AcceptAll is the minimal concrete Factory/Strategy pair wired by the
// process entrypoint when no kind-specific persistence backend is
// configured. Kind-specific event persistence is an out-of-scope
// collaborator; AcceptAll only acknowledges acceptance, matching the
// "successful strategy emits its own OK, true acknowledgement"
// contract without actually storing anything.
type AcceptAll struct{}

// For implements Factory: it handles every kind.
func (AcceptAll) For(event *types.Event, conn transport.Conn) Strategy {
	return acceptAllStrategy{conn: conn}
}

type acceptAllStrategy struct {
	conn transport.Conn
}

// Execute implements Strategy.
func (s acceptAllStrategy) Execute(ctx context.Context, event *types.Event) error {
	return emitter.Emit(s.conn, event.IDHex(), true, "")
}
