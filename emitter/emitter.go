// Package emitter formats and writes the three-field command-result
// acknowledgement back through a connection.
package emitter

import (
	"encoding/json"
	"fmt"

	"relaycore/transport"
)

// frame is the wire shape of a command-result acknowledgement:
// ["OK", eventId, accepted, reason].
type frame [4]interface{}

// Emit writes one acknowledgement to conn. reason is empty on success.
// Called at most once per admission — the pipeline must not call this
// after handing the event off to a strategy.
func Emit(conn transport.Conn, eventIDHex string, accepted bool, reason string) error {
	payload, err := json.Marshal(frame{"OK", eventIDHex, accepted, reason})
	if err != nil {
		return fmt.Errorf("emitter: encode: %w", err)
	}
	if err := conn.Send(payload); err != nil {
		return fmt.Errorf("emitter: send: %w", err)
	}
	return nil
}
