package signaling

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

// Hub is the central brain of the signaling server.
// It owns every connected client and applies room events one at a time.
type Hub struct {
	registry *Registry
	relay    *Relay
	log      *slog.Logger
	metrics  *Metrics

	// clients maps member ids to connections. Only Run touches it.
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	done       chan struct{}
}

type inbound struct {
	client *Client
	msg    *protocol.Message
}

// NewHub creates a Hub around registry. metrics may be nil.
func NewHub(registry *Registry, log *slog.Logger, metrics *Metrics) *Hub {
	h := &Hub{
		registry:   registry,
		log:        log,
		metrics:    metrics,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound, 64),
		done:       make(chan struct{}),
	}
	h.relay = NewRelay(registry, h, log, metrics)
	return h
}

// Register hands a freshly connected client to the hub. It returns false if
// the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client, which implicitly leaves its room.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Dispatch queues an inbound message from c.
func (h *Hub) Dispatch(c *Client, msg *protocol.Message) {
	select {
	case h.inbound <- inbound{client: c, msg: msg}:
	case <-h.done:
	}
}

// Run is the hub's event loop. It is the only goroutine that mutates rooms
// through the hub, and returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.clients[client.ID] = client
			h.log.Debug("client registered", "member", client.ID)
			if h.metrics != nil {
				h.metrics.Connections.Inc()
			}

		case client := <-h.unregister:
			h.drop(client)

		case in := <-h.inbound:
			h.handle(in.client, in.msg)
		}
	}
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	res := h.registry.Disconnect(client.ID)
	h.deliverAll(res.Notifications)
	if len(res.Notifications) > 0 || res.Reclaimed {
		h.log.Info("member disconnected from room", "member", client.ID, "remaining", len(res.Remaining))
		if h.metrics != nil {
			h.metrics.Leaves.WithLabelValues("disconnect").Inc()
		}
	}

	delete(h.clients, client.ID)
	close(client.Send)
	h.log.Debug("client unregistered", "member", client.ID)

	if h.metrics != nil {
		h.metrics.Connections.Dec()
		h.metrics.observeRegistry(h.registry)
	}
}

func (h *Hub) handle(client *Client, msg *protocol.Message) {
	if _, ok := h.clients[client.ID]; !ok {
		return
	}

	switch msg.Type {
	case protocol.TypeJoin:
		h.handleJoin(client, msg.RoomID)

	case protocol.TypeLeave:
		h.handleLeave(client, h.roomFor(client, msg))

	case protocol.TypeMessage:
		h.relay.Relay(h.roomFor(client, msg), client.ID, msg.Payload)

	case typeMalformed:
		h.sendError(client, "malformed message")

	default:
		h.log.Warn("unknown message type", "member", client.ID, "type", msg.Type)
		h.sendError(client, "unknown message type: "+msg.Type)
	}

	if h.metrics != nil {
		h.metrics.observeRegistry(h.registry)
	}
}

func (h *Hub) handleJoin(client *Client, roomID string) {
	res, err := h.registry.Join(roomID, client.ID)
	switch {
	case err == nil:
		h.log.Info("member joined room", "member", client.ID, "room", roomID, "size", res.Snapshot.Size())
		h.countJoin(JoinAdmitted)

	case errors.Is(err, ErrRoomFull):
		h.log.Info("room is full", "member", client.ID, "room", roomID)
		h.countJoin(JoinFull)

	default:
		h.log.Warn("join rejected", "member", client.ID, "room", roomID, "error", err)
		h.countJoin(JoinRejected)
		h.sendError(client, err.Error())
		return
	}

	h.deliverAll(res.Notifications)
}

func (h *Hub) handleLeave(client *Client, roomID string) {
	res, err := h.registry.Leave(roomID, client.ID)
	if err != nil {
		h.log.Debug("leave for a room the member is not in", "member", client.ID, "room", roomID)
	} else {
		h.log.Info("member left room", "member", client.ID, "room", roomID, "remaining", len(res.Remaining))
		if h.metrics != nil {
			h.metrics.Leaves.WithLabelValues("voluntary").Inc()
		}
	}
	h.deliverAll(res.Notifications)
}

// roomFor returns the room a request targets, defaulting to the member's
// current room.
func (h *Hub) roomFor(client *Client, msg *protocol.Message) string {
	if msg.RoomID != "" {
		return msg.RoomID
	}
	return h.registry.RoomOf(client.ID)
}

func (h *Hub) countJoin(result string) {
	if h.metrics != nil {
		h.metrics.Joins.WithLabelValues(result).Inc()
	}
}

func (h *Hub) sendError(client *Client, reason string) {
	h.Deliver(client.ID, &protocol.Message{Type: protocol.TypeError, Reason: reason})
}

func (h *Hub) deliverAll(notes []Notification) {
	for _, n := range notes {
		h.Deliver(n.To, n.Message)
	}
}

// Deliver queues msg on the member's send channel without blocking. A member
// whose queue is full misses the message.
func (h *Hub) Deliver(memberID string, msg *protocol.Message) bool {
	client, ok := h.clients[memberID]
	if !ok {
		return false
	}

	select {
	case client.Send <- msg:
		return true
	default:
		h.log.Warn("send queue full, dropping message", "member", memberID, "type", msg.Type)
		return false
	}
}

func (h *Hub) shutdown() {
	close(h.done)
	for id, client := range h.clients {
		select {
		case client.Send <- &protocol.Message{Type: protocol.TypeDisconnect, Reason: "server shutting down"}:
		default:
		}
		close(client.Send)
		delete(h.clients, id)
	}
}
