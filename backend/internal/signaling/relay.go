package signaling

import (
	"encoding/json"
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

// Outbox delivers a message to a connected member. Deliver reports whether
// the message was queued.
type Outbox interface {
	Deliver(memberID string, msg *protocol.Message) bool
}

// Relay forwards negotiation payloads between members of a room. It never
// decodes the payload.
type Relay struct {
	registry *Registry
	out      Outbox
	log      *slog.Logger
	metrics  *Metrics
}

func NewRelay(registry *Registry, out Outbox, log *slog.Logger, metrics *Metrics) *Relay {
	return &Relay{registry: registry, out: out, log: log, metrics: metrics}
}

// Relay delivers payload to every member of roomID except sender and returns
// how many members it reached. A missing room, an empty room or a sender
// outside the room is a silent no-op.
func (r *Relay) Relay(roomID, sender string, payload json.RawMessage) int {
	members, ok := r.registry.Members(roomID)
	if !ok {
		r.drop(DropNoRoom, roomID, sender)
		return 0
	}

	isMember := false
	targets := make([]string, 0, len(members))
	for _, m := range members {
		if m == sender {
			isMember = true
			continue
		}
		targets = append(targets, m)
	}

	if !isMember {
		r.drop(DropNotMember, roomID, sender)
		return 0
	}
	if len(targets) == 0 {
		r.drop(DropNoPeer, roomID, sender)
		return 0
	}

	delivered := 0
	for _, target := range targets {
		msg := &protocol.Message{
			Type:    protocol.TypeMessage,
			RoomID:  roomID,
			From:    sender,
			Payload: payload,
		}
		if !r.out.Deliver(target, msg) {
			r.drop(DropSlowPeer, roomID, sender)
			continue
		}
		delivered++
		if r.metrics != nil {
			r.metrics.Relayed.Inc()
		}
	}

	r.log.Debug("relayed signal", "room", roomID, "from", sender, "delivered", delivered)
	return delivered
}

func (r *Relay) drop(reason, roomID, sender string) {
	r.log.Debug("signal not relayed", "room", roomID, "from", sender, "reason", reason)
	if r.metrics != nil {
		r.metrics.RelayDropped.WithLabelValues(reason).Inc()
	}
}
