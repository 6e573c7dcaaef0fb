package transport

import (
	"encoding/json"
	"errors"
	"fmt"

	"relaycore/core/types"
)

// ErrNotAnEventFrame is returned by DecodeEventFrame when the inbound
// message's first element isn't the "EVENT" tag the pipeline handles;
// callers should ignore other tags rather than treat them as malformed.
var ErrNotAnEventFrame = errors.New("transport: not an EVENT frame")

// DecodeEventFrame parses an inbound ["EVENT", event] message.
func DecodeEventFrame(raw []byte) (*types.Event, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, fmt.Errorf("transport: decode frame: %w", err)
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("transport: frame has %d elements, want at least 2", len(parts))
	}
	var tag string
	if err := json.Unmarshal(parts[0], &tag); err != nil {
		return nil, fmt.Errorf("transport: decode frame tag: %w", err)
	}
	if tag != "EVENT" {
		return nil, ErrNotAnEventFrame
	}
	var event types.Event
	if err := json.Unmarshal(parts[1], &event); err != nil {
		return nil, fmt.Errorf("transport: decode event: %w", err)
	}
	return &event, nil
}
