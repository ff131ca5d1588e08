// Package server defines the wire message shapes exchanged with clients
// and utility helpers reused across client and hub logic.
package server

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message type discriminators for the inbound tagged union.
const (
	MessageTypeJoin  = "join_room"
	MessageTypeLeave = "leave_room"
	MessageTypeChat  = "chat"
)

// RoomID is an opaque fan-out key supplied by clients. Clients may send
// it as a JSON string or number; both forms canonicalize to the same
// string so "42" and 42 address the same room.
type RoomID string

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (r *RoomID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = RoomID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*r = RoomID(n.String())
		return nil
	}

	return fmt.Errorf("roomId must be a string or a number, got %s", data)
}

// InboundMessage is the tagged payload clients send over an established
// connection. Fields not used by a given type are left at their zero
// values.
type InboundMessage struct {
	Type    string `json:"type"`
	RoomID  RoomID `json:"roomId"`
	Message string `json:"message"`
}

// ChatFrame is the outbound broadcast shape delivered to every member of
// the target room, the sender included.
type ChatFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	RoomID  RoomID `json:"roomId"`
}

// BroadcastMessage carries one published event through the hub's dispatch
// loop to the members of its target room.
type BroadcastMessage struct {
	RoomID  RoomID
	Payload []byte
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
