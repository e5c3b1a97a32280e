package signaling

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// DefaultMaxMessageSize is enough for SDP with a full set of codecs.
	DefaultMaxMessageSize = 64 * 1024

	// DefaultSendQueue is the per-client outbound buffer.
	DefaultSendQueue = 256

	// typeMalformed marks a frame that could not be decoded. It never
	// appears on the wire.
	typeMalformed = "\x00malformed"
)

// Client is a wrapper for a single websocket connection (a member).
type Client struct {
	// ID is the member id assigned on connect.
	ID string

	Hub  *Hub
	Conn *websocket.Conn

	// Send is a buffered channel of outbound messages. The hub writes to it
	// and closes it; WritePump drains it onto the websocket.
	Send chan *protocol.Message

	log            *slog.Logger
	maxMessageSize int64
}

// ClientOptions tune a Client's buffers.
type ClientOptions struct {
	SendQueue      int
	MaxMessageSize int64
}

// NewClient wraps conn as member id.
func NewClient(id string, hub *Hub, conn *websocket.Conn, log *slog.Logger, opts ClientOptions) *Client {
	if opts.SendQueue <= 0 {
		opts.SendQueue = DefaultSendQueue
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	return &Client{
		ID:             id,
		Hub:            hub,
		Conn:           conn,
		Send:           make(chan *protocol.Message, opts.SendQueue),
		log:            log.With("member", id),
		maxMessageSize: opts.MaxMessageSize,
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg protocol.Message
		err := c.Conn.ReadJSON(&msg)
		if err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.log.Warn("malformed message", "error", err)
				c.Hub.Dispatch(c, &protocol.Message{Type: typeMalformed})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("read failed", "error", err)
			}
			return
		}

		c.Hub.Dispatch(c, &msg)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.writeJSON(message); err != nil {
				if errors.Is(err, protocol.ErrInvalidPayload) {
					c.log.Warn("dropping message with invalid payload", "type", message.Type)
					continue
				}
				c.log.Warn("write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeJSON writes msg with its payload bytes exactly as the sender produced
// them.
func (c *Client) writeJSON(msg *protocol.Message) error {
	data, err := protocol.MarshalEnvelope(msg)
	if err != nil {
		return err
	}
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}
