// Package call runs one client's side of a two-party call: it feeds room
// events to the session machine, negotiation messages to the controller,
// and carries out the side effects they decide on.
package call

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpcall/cli/internal/media"
	"github.com/BioHazard786/Warpcall/cli/internal/negotiation"
	"github.com/BioHazard786/Warpcall/cli/internal/session"
	"github.com/BioHazard786/Warpcall/cli/internal/signaling"
	"github.com/BioHazard786/Warpcall/cli/internal/webrtc"
	"github.com/BioHazard786/Warpcall/internal/protocol"
)

// leaveTimeout bounds the wait for the server to acknowledge a leave.
const leaveTimeout = 3 * time.Second

// Transport sends messages to the signaling server. It is satisfied by
// *signaling.Client.
type Transport interface {
	SendMessage(msg *protocol.Message) error
	Close()
}

// Link is a peer link that also carries chat.
type Link interface {
	negotiation.PeerLink
	SendChat(text string) error
}

// LinkFactory builds a peer link sending tracks and reporting through events.
type LinkFactory func(tracks []pion.TrackLocal, events webrtc.Events) (Link, error)

// Reporter receives everything worth showing the user. Methods may be
// called from any goroutine.
type Reporter interface {
	State(s session.State)
	Joined(self string, room *protocol.RoomSnapshot)
	PeerJoined(id string)
	PeerLeft(id string)
	LinkState(state string)
	RemoteTrack(kind string)
	Chat(from, text string, at time.Time)
	Notice(msg string)
}

// Options configure a Call.
type Options struct {
	RoomID  string
	Capture media.Options
}

// Call is one attempt to join a room and talk to whoever is in it.
type Call struct {
	opts      Options
	transport Transport
	events    <-chan signaling.Event
	source    media.Source
	newLink   LinkFactory
	report    Reporter
	log       *slog.Logger

	machine *session.Machine
	ctrl    *negotiation.Controller

	// ctx is the context of the running call, used by effects.
	ctx    context.Context
	stream media.Stream

	mu   sync.Mutex
	self string
	done bool
}

// New assembles a call. events is the handler's event stream for transport.
func New(opts Options, transport Transport, events <-chan signaling.Event, source media.Source, newLink LinkFactory, report Reporter, log *slog.Logger) *Call {
	c := &Call{
		opts:      opts,
		transport: transport,
		events:    events,
		source:    source,
		newLink:   newLink,
		report:    report,
		log:       log.With("room", opts.RoomID),
	}

	c.ctrl = negotiation.NewController(c.buildLink, c, c.log)
	c.machine = session.NewMachine(c)
	c.machine.OnTransition(func(from, to session.State, ev session.Event) {
		c.log.Debug("session transition", "from", from, "to", to, "event", ev)
		c.ctrl.SetAccepting(to == session.Joined || to == session.NegotiatingPeer)
		c.report.State(to)
	})
	return c
}

// State returns the session state.
func (c *Call) State() session.State {
	return c.machine.State()
}

// Run opens capture, joins the room and processes events until the call
// ends. Cancelling ctx leaves the room.
func (c *Call) Run(ctx context.Context) error {
	stream, err := c.source.Open(ctx, c.opts.Capture)
	if err != nil {
		return NewError("open capture", err)
	}
	c.stream = stream
	defer stream.Close()

	// Effects outlive ctx so leaving can still be negotiated.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	c.ctx = runCtx

	if _, err := c.machine.Fire(session.UserJoin); err != nil {
		c.Disconnect()
		return NewError("join", err)
	}

	leaving := ctx.Done()
	var leaveDeadline <-chan time.Time

	for {
		select {
		case <-leaving:
			leaving = nil
			if _, err := c.machine.Fire(session.UserLeave); err != nil {
				// Not admitted yet; there is nothing to leave.
				c.log.Debug("leave before admission", "error", err)
				c.Disconnect()
				return nil
			}
			leaveDeadline = time.After(leaveTimeout)

		case <-leaveDeadline:
			c.log.Warn("server did not acknowledge leave")
			c.Disconnect()
			return nil

		case ev, ok := <-c.events:
			if !ok {
				ev = signaling.Event{Kind: signaling.EventDisconnect, Reason: "event stream closed"}
			}
			if end, err := c.dispatch(ev); end {
				c.ctrl.Teardown()
				return err
			}
		}
	}
}

// dispatch applies one server event. end is true when the call is over.
func (c *Call) dispatch(ev signaling.Event) (end bool, err error) {
	switch ev.Kind {
	case signaling.EventJoined:
		c.mu.Lock()
		c.self = ev.MemberID
		c.mu.Unlock()
		c.ctrl.SetSelf(ev.MemberID)
		c.report.Joined(ev.MemberID, ev.Room)
		c.fire(session.JoinedNotice)

	case signaling.EventFull:
		c.fire(session.FullNotice)
		return true, WrapError("join", ErrRoomFull, c.opts.RoomID)

	case signaling.EventOtherJoined:
		c.report.PeerJoined(ev.MemberID)
		c.fire(session.OtherJoinedNotice)

	case signaling.EventPeerLeft:
		c.report.PeerLeft(ev.MemberID)
		c.fire(session.PeerLeftNotice)

	case signaling.EventLeft:
		c.fire(session.LeftNotice)
		return true, nil

	case signaling.EventSignal:
		c.handleSignal(ev)

	case signaling.EventDisconnect:
		wasLeft := c.machine.State() == session.Left
		c.fire(session.Disconnected)
		c.Disconnect()
		if wasLeft {
			return true, nil
		}
		return true, WrapError("signaling", ErrDisconnected, ev.Reason)

	case signaling.EventError:
		c.report.Notice("server: " + ev.Reason)
	}
	return false, nil
}

func (c *Call) fire(ev session.Event) {
	if _, err := c.machine.Fire(ev); err != nil {
		if errors.Is(err, session.ErrIllegalTransition) {
			c.log.Warn("ignoring room event", "error", err)
			return
		}
		c.log.Error("session effect failed", "event", ev, "error", err)
		c.report.Notice(err.Error())
	}
}

func (c *Call) handleSignal(ev signaling.Event) {
	err := c.ctrl.Handle(c.ctx, ev.From, ev.Signal)
	switch {
	case err == nil:
	case errors.Is(err, negotiation.ErrMissingPeerLink), errors.Is(err, negotiation.ErrNegotiationCancelled):
		c.log.Debug("dropping negotiation message", "type", ev.Signal.Type, "error", err)
	default:
		c.log.Warn("negotiation attempt failed", "type", ev.Signal.Type, "error", err)
		c.report.Notice("negotiation failed: " + err.Error())
	}
}

// Say sends a chat line to the peer over the link the controller holds.
func (c *Call) Say(text string) error {
	link, ok := c.ctrl.Link().(Link)
	if !ok || link == nil {
		return ErrNoPeer
	}
	return link.SendChat(text)
}

func (c *Call) buildLink() (negotiation.PeerLink, error) {
	link, err := c.newLink(c.stream.Tracks(), webrtc.Events{
		OnState:       c.report.LinkState,
		OnRemoteTrack: c.report.RemoteTrack,
		OnChat: func(msg webrtc.ChatPayload) {
			c.report.Chat(msg.From, msg.Text, msg.Time())
		},
		OnHello: func(msg webrtc.HelloPayload) {
			c.report.Notice("connected to " + msg.Name)
		},
	})
	if err != nil {
		return nil, err
	}
	return link, nil
}

// Signal relays a negotiation message to the room.
func (c *Call) Signal(msg protocol.Negotiation) error {
	payload, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return c.transport.SendMessage(&protocol.Message{
		Type:    protocol.TypeMessage,
		RoomID:  c.opts.RoomID,
		Payload: payload,
	})
}

func (c *Call) Join() error {
	return c.transport.SendMessage(&protocol.Message{Type: protocol.TypeJoin, RoomID: c.opts.RoomID})
}

func (c *Call) Leave() error {
	return c.transport.SendMessage(&protocol.Message{Type: protocol.TypeLeave, RoomID: c.opts.RoomID})
}

func (c *Call) BeginNegotiation(fresh bool) error {
	return c.ctrl.Begin(c.ctx, fresh)
}

func (c *Call) TeardownPeerLink() {
	c.ctrl.Teardown()
}

func (c *Call) TeardownCapture() {
	if c.stream != nil {
		c.stream.Close()
	}
}

func (c *Call) Disconnect() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	c.mu.Unlock()

	c.transport.Close()
}
