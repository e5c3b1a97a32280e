package webrtc

import (
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Data channel message types
const (
	MessageTypeChat  = "chat"
	MessageTypeHello = "hello"
)

// ErrUnknownChatMessage is returned for a data channel message of an unknown type.
var ErrUnknownChatMessage = errors.New("unknown data channel message")

// Message represents all WebRTC data channel messages
type Message struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// ChatPayload is one line of text chat.
type ChatPayload struct {
	From   string `msgpack:"from"`
	Text   string `msgpack:"text"`
	SentAt int64  `msgpack:"sentAt"`
}

// Time returns when the line was sent.
func (c ChatPayload) Time() time.Time {
	return time.UnixMilli(c.SentAt)
}

// HelloPayload is sent once the chat channel opens.
type HelloPayload struct {
	Name          string `msgpack:"name"`
	ClientVersion string `msgpack:"clientVersion"`
}

// DecodePayload decodes the message payload into the provided struct
func (m Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// NewMessage creates a new Message with the given type and payload
func NewMessage(t string, payload any) (Message, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Message{}, err
	}

	return Message{
		Type:    t,
		Payload: b,
	}, nil
}

// EncodeMessage builds and marshals a data channel frame.
func EncodeMessage(t string, payload any) ([]byte, error) {
	msg, err := NewMessage(t, payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(msg)
}

// DecodeMessage unmarshals a data channel frame and its payload. It returns
// a ChatPayload or a HelloPayload.
func DecodeMessage(data []byte) (any, error) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch msg.Type {
	case MessageTypeChat:
		var chat ChatPayload
		if err := msg.DecodePayload(&chat); err != nil {
			return nil, fmt.Errorf("decode chat: %w", err)
		}
		return chat, nil

	case MessageTypeHello:
		var hello HelloPayload
		if err := msg.DecodePayload(&hello); err != nil {
			return nil, fmt.Errorf("decode hello: %w", err)
		}
		return hello, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChatMessage, msg.Type)
	}
}
