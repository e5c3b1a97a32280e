package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ErrInvalidPayload is returned when an envelope's payload is not valid JSON.
var ErrInvalidPayload = errors.New("payload is not valid JSON")

// Message is the websocket envelope exchanged between clients and the
// signaling server, in both directions.
type Message struct {
	Type string `json:"type"`

	// RoomID names the room a C2S request targets.
	RoomID string `json:"room_id,omitempty"`

	// MemberID is the recipient's own id on "joined", and the id of the
	// member that arrived or departed on "other-join" and "bye".
	MemberID string `json:"member_id,omitempty"`

	// From is stamped by the server on relayed "message" envelopes.
	From string `json:"from,omitempty"`

	Room *RoomSnapshot `json:"room,omitempty"`

	// Payload carries a negotiation message. The server never looks inside.
	Payload json.RawMessage `json:"payload,omitempty"`

	Reason string `json:"reason,omitempty"`
}

// RoomSnapshot is a point-in-time view of a room's membership.
type RoomSnapshot struct {
	ID       string   `json:"id"`
	Members  []string `json:"members"`
	Capacity int      `json:"capacity"`
}

// Size returns the number of members in the snapshot.
func (s *RoomSnapshot) Size() int {
	if s == nil {
		return 0
	}
	return len(s.Members)
}

// RoomList is the body of GET /rooms.
type RoomList struct {
	Capacity int             `json:"capacity"`
	Rooms    []*RoomSnapshot `json:"rooms"`
}

// Message type constants.
const (
	// Client to server.
	TypeJoin    = "join"
	TypeLeave   = "leave"
	TypeMessage = "message"

	// Server to client.
	TypeJoined     = "joined"
	TypeFull       = "full"
	TypeOtherJoin  = "other-join"
	TypeLeaved     = "leaved"
	TypeBye        = "bye"
	TypeDisconnect = "disconnect"
	TypeError      = "error"
)

// MarshalEnvelope encodes msg without HTML escaping and writes its payload
// bytes verbatim, whitespace included. encoding/json would compact them.
func MarshalEnvelope(msg *Message) ([]byte, error) {
	head := *msg
	head.Payload = nil

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&head); err != nil {
		return nil, err
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	if len(msg.Payload) == 0 {
		return out, nil
	}
	if !json.Valid(msg.Payload) {
		return nil, ErrInvalidPayload
	}

	// out ends with the envelope's closing brace.
	out = append(out[:len(out)-1], `,"payload":`...)
	out = append(out, msg.Payload...)
	return append(out, '}'), nil
}
