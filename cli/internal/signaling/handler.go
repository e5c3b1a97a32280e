package signaling

import (
	"errors"
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

// EventKind identifies what the server told us.
type EventKind int

const (
	EventJoined EventKind = iota
	EventFull
	EventOtherJoined
	EventLeft
	EventPeerLeft
	EventSignal
	EventDisconnect
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventJoined:
		return "joined"
	case EventFull:
		return "full"
	case EventOtherJoined:
		return "other-joined"
	case EventLeft:
		return "left"
	case EventPeerLeft:
		return "peer-left"
	case EventSignal:
		return "signal"
	case EventDisconnect:
		return "disconnect"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a decoded server message.
type Event struct {
	Kind EventKind

	// MemberID is our own id for EventJoined and the other member for
	// EventOtherJoined and EventPeerLeft.
	MemberID string

	// From is the sender of an EventSignal.
	From string

	Room   *protocol.RoomSnapshot
	Signal protocol.Negotiation

	// Reason explains EventDisconnect and EventError.
	Reason string
}

// Source yields server messages. It is satisfied by *Client.
type Source interface {
	Incoming() <-chan *protocol.Message
}

// Handler turns incoming signaling messages into one ordered stream of
// events.
type Handler struct {
	source Source
	log    *slog.Logger
	events chan Event
}

// NewHandler creates a new message handler.
func NewHandler(source Source, log *slog.Logger) *Handler {
	return &Handler{
		source: source,
		log:    log,
		events: make(chan Event, 32),
	}
}

// Events returns the event stream. It is closed after Start returns.
func (h *Handler) Events() <-chan Event {
	return h.events
}

// Start routes incoming messages until the source closes. A lost connection
// that the server did not announce is reported as EventDisconnect.
func (h *Handler) Start() {
	defer close(h.events)

	announced := false
	for msg := range h.source.Incoming() {
		ev, ok := h.decode(msg)
		if !ok {
			continue
		}
		if ev.Kind == EventDisconnect {
			announced = true
		}
		h.events <- ev
	}

	if !announced {
		h.events <- Event{Kind: EventDisconnect, Reason: "connection to signaling server lost"}
	}
}

func (h *Handler) decode(msg *protocol.Message) (Event, bool) {
	switch msg.Type {
	case protocol.TypeJoined:
		return Event{Kind: EventJoined, MemberID: msg.MemberID, Room: msg.Room}, true

	case protocol.TypeFull:
		return Event{Kind: EventFull, Room: msg.Room}, true

	case protocol.TypeOtherJoin:
		return Event{Kind: EventOtherJoined, MemberID: msg.MemberID, Room: msg.Room}, true

	case protocol.TypeLeaved:
		return Event{Kind: EventLeft}, true

	case protocol.TypeBye:
		return Event{Kind: EventPeerLeft, MemberID: msg.MemberID, Room: msg.Room}, true

	case protocol.TypeMessage:
		return h.decodeSignal(msg)

	case protocol.TypeDisconnect:
		return Event{Kind: EventDisconnect, Reason: msg.Reason}, true

	case protocol.TypeError:
		return Event{Kind: EventError, Reason: msg.Reason}, true

	default:
		h.log.Debug("ignoring unknown server message", "type", msg.Type)
		return Event{}, false
	}
}

func (h *Handler) decodeSignal(msg *protocol.Message) (Event, bool) {
	n, err := protocol.Decode(msg.Payload)
	switch {
	case err == nil:
		return Event{Kind: EventSignal, From: msg.From, Signal: n}, true

	case errors.Is(err, protocol.ErrUnknownMessageType):
		h.log.Warn("dropping signal of unknown type", "from", msg.From, "error", err)

	default:
		h.log.Warn("dropping malformed signal", "from", msg.From, "error", err)
	}
	return Event{}, false
}
