package realtime

import (
	"encoding/json"
	"fmt"
)

// Event names exchanged on the realtime channel.
const (
	EventServerMessage = "server_message"
	EventPing          = "ping"
	EventPong          = "pong"
	EventError         = "error"
	EventPostCreated   = "post_created"
)

// Event is one frame on the wire: {"event": name, "data": payload}.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type inboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// decodeEvent parses a frame received from a client or a relay. The payload is kept raw
// so relayed events are forwarded without being reshaped.
func decodeEvent(raw []byte) (inboundEvent, error) {
	var in inboundEvent
	if err := json.Unmarshal(raw, &in); err != nil {
		return in, fmt.Errorf("decode event: %w", err)
	}
	if in.Event == "" {
		return in, fmt.Errorf("decode event: missing event name")
	}
	return in, nil
}
