// Package negotiation drives offer/answer and trickle candidate exchange for
// a single peer link at a time.
package negotiation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BioHazard786/Warpcall/internal/protocol"
)

var (
	// ErrMissingPeerLink is returned for a negotiation message that arrives
	// while no peer link can exist, such as a stale message after leaving.
	ErrMissingPeerLink = errors.New("no peer link for negotiation message")

	// ErrNegotiationCancelled is returned by a step whose peer link was torn
	// down while it ran.
	ErrNegotiationCancelled = errors.New("negotiation cancelled")
)

// PeerLink is the negotiated transport the controller drives.
type PeerLink interface {
	// CreateOffer returns an offer requesting audio and video in both directions.
	CreateOffer(ctx context.Context) (string, error)
	CreateAnswer(ctx context.Context) (string, error)
	SetLocalDescription(kind protocol.Kind, sdp string) error
	SetRemoteDescription(kind protocol.Kind, sdp string) error
	AddRemoteCandidate(c protocol.Negotiation) error
	// OnLocalCandidate registers the callback for discovered local candidates.
	OnLocalCandidate(fn func(protocol.Negotiation))
	Close() error
}

// LinkFactory builds a fresh peer link.
type LinkFactory func() (PeerLink, error)

// Signaler relays negotiation messages to the room. It must be safe for
// concurrent use since local candidates arrive on the link's goroutines.
type Signaler interface {
	Signal(msg protocol.Negotiation) error
}

// Controller owns the peer link, the pending candidate buffer and the
// offer/answer bookkeeping.
type Controller struct {
	newLink LinkFactory
	signal  Signaler
	log     *slog.Logger

	// opMu keeps negotiation steps strictly ordered.
	opMu sync.Mutex

	mu   sync.Mutex
	link PeerLink
	// gen changes whenever the link is torn down.
	gen          uint64
	pending      []protocol.Negotiation
	remoteSet    bool
	offerPending bool
	accepting    bool
	self         string
}

func NewController(newLink LinkFactory, signal Signaler, log *slog.Logger) *Controller {
	return &Controller{newLink: newLink, signal: signal, log: log}
}

// SetSelf records our member id, used to break offer glare.
func (c *Controller) SetSelf(id string) {
	c.mu.Lock()
	c.self = id
	c.mu.Unlock()
}

// SetAccepting controls whether an incoming offer may create a peer link.
func (c *Controller) SetAccepting(v bool) {
	c.mu.Lock()
	c.accepting = v
	c.mu.Unlock()
}

// HasLink reports whether a peer link currently exists.
func (c *Controller) HasLink() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

// Link returns the peer link the controller currently drives, or nil.
func (c *Controller) Link() PeerLink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

// Pending returns how many remote candidates wait for a remote description.
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Begin creates an offer, applies it locally and relays it. fresh tears down
// any previous link first.
func (c *Controller) Begin(ctx context.Context, fresh bool) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if fresh {
		c.Teardown()
	}

	link, gen, err := c.ensureLink()
	if err != nil {
		return err
	}

	var sdp string
	if err := c.step(gen, func() (err error) {
		sdp, err = link.CreateOffer(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := c.step(gen, func() error { return link.SetLocalDescription(protocol.KindOffer, sdp) }); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrNegotiationCancelled
	}
	c.offerPending = true
	c.mu.Unlock()

	c.log.Debug("sending offer")
	return c.relay(gen, protocol.Offer(sdp))
}

// Handle applies a negotiation message relayed from member from.
func (c *Controller) Handle(ctx context.Context, from string, msg protocol.Negotiation) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	switch msg.Type {
	case protocol.KindOffer:
		return c.handleOffer(ctx, from, msg.SDP)
	case protocol.KindAnswer:
		return c.handleAnswer(msg.SDP)
	case protocol.KindCandidate:
		return c.handleCandidate(msg)
	default:
		return fmt.Errorf("%w: %q", protocol.ErrUnknownMessageType, msg.Type)
	}
}

func (c *Controller) handleOffer(ctx context.Context, from, sdp string) error {
	c.mu.Lock()
	if !c.accepting {
		c.mu.Unlock()
		return ErrMissingPeerLink
	}

	var yielded PeerLink
	if c.offerPending {
		// Glare. The smaller member id yields and answers.
		if c.self > from {
			c.mu.Unlock()
			c.log.Debug("ignoring offer during glare", "from", from)
			return nil
		}
		yielded = c.detachLocked()
	}
	c.mu.Unlock()

	if yielded != nil {
		c.log.Debug("yielding to peer offer", "from", from)
		if err := yielded.Close(); err != nil {
			c.log.Debug("closing yielded peer link", "error", err)
		}
	}

	err := c.answerOffer(ctx, from, sdp)
	if err != nil && yielded != nil && !errors.Is(err, ErrNegotiationCancelled) {
		// Leave nothing half negotiated behind; the next room event starts clean.
		c.Teardown()
	}
	return err
}

func (c *Controller) answerOffer(ctx context.Context, from, sdp string) error {
	link, gen, err := c.ensureLink()
	if err != nil {
		return err
	}

	if err := c.step(gen, func() error { return link.SetRemoteDescription(protocol.KindOffer, sdp) }); err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}
	if err := c.remoteApplied(gen, link); err != nil {
		return err
	}

	var answer string
	if err := c.step(gen, func() (err error) {
		answer, err = link.CreateAnswer(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := c.step(gen, func() error { return link.SetLocalDescription(protocol.KindAnswer, answer) }); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}

	c.log.Debug("sending answer", "to", from)
	return c.relay(gen, protocol.Answer(answer))
}

func (c *Controller) handleAnswer(sdp string) error {
	c.mu.Lock()
	link, gen := c.link, c.gen
	if link == nil {
		c.mu.Unlock()
		return ErrMissingPeerLink
	}
	if !c.offerPending {
		c.mu.Unlock()
		c.log.Debug("ignoring answer without an outstanding offer")
		return nil
	}
	c.mu.Unlock()

	if err := c.step(gen, func() error { return link.SetRemoteDescription(protocol.KindAnswer, sdp) }); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}

	c.mu.Lock()
	if c.gen == gen {
		c.offerPending = false
	}
	c.mu.Unlock()

	return c.remoteApplied(gen, link)
}

func (c *Controller) handleCandidate(cand protocol.Negotiation) error {
	c.mu.Lock()
	if c.link == nil && !c.accepting {
		c.mu.Unlock()
		return ErrMissingPeerLink
	}
	if c.link == nil || !c.remoteSet {
		c.pending = append(c.pending, cand)
		c.mu.Unlock()
		return nil
	}
	link, gen := c.link, c.gen
	c.mu.Unlock()

	if err := c.step(gen, func() error { return link.AddRemoteCandidate(cand) }); err != nil {
		return fmt.Errorf("add remote candidate: %w", err)
	}
	return nil
}

// remoteApplied marks the remote description set and drains the pending
// buffer in arrival order. Each candidate leaves the buffer before it is
// applied so none is applied twice.
func (c *Controller) remoteApplied(gen uint64, link PeerLink) error {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrNegotiationCancelled
	}
	c.remoteSet = true
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	var errs []error
	for _, cand := range pending {
		if err := c.step(gen, func() error { return link.AddRemoteCandidate(cand) }); err != nil {
			if errors.Is(err, ErrNegotiationCancelled) {
				return err
			}
			errs = append(errs, fmt.Errorf("add buffered candidate: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Teardown closes the peer link and discards every buffer. Steps still
// running against the old link finish with ErrNegotiationCancelled.
func (c *Controller) Teardown() {
	c.mu.Lock()
	link := c.link
	c.link = nil
	c.gen++
	c.pending = nil
	c.remoteSet = false
	c.offerPending = false
	c.mu.Unlock()

	if link != nil {
		if err := link.Close(); err != nil {
			c.log.Debug("closing peer link", "error", err)
		}
	}
}

// detachLocked drops the link holding our outstanding offer so the peer's
// offer is answered on a fresh one, and returns it for closing. Remote
// candidates stay buffered since they belong to the peer's offer. Callers
// hold c.mu.
func (c *Controller) detachLocked() PeerLink {
	old := c.link
	c.link = nil
	c.gen++
	c.remoteSet = false
	c.offerPending = false
	return old
}

// ensureLink returns the current link, building one if needed.
func (c *Controller) ensureLink() (PeerLink, uint64, error) {
	c.mu.Lock()
	if c.link != nil {
		defer c.mu.Unlock()
		return c.link, c.gen, nil
	}
	gen := c.gen
	c.mu.Unlock()

	link, err := c.newLink()
	if err != nil {
		return nil, 0, fmt.Errorf("create peer link: %w", err)
	}

	c.mu.Lock()
	if c.gen != gen || c.link != nil {
		c.mu.Unlock()
		link.Close()
		return nil, 0, ErrNegotiationCancelled
	}
	c.link = link
	c.mu.Unlock()

	link.OnLocalCandidate(func(cand protocol.Negotiation) {
		if err := c.relay(gen, cand); err != nil && !errors.Is(err, ErrNegotiationCancelled) {
			c.log.Warn("failed to relay local candidate", "error", err)
		}
	})
	return link, gen, nil
}

// step runs fn against the link of generation gen.
func (c *Controller) step(gen uint64, fn func() error) error {
	if !c.current(gen) {
		return ErrNegotiationCancelled
	}
	err := fn()
	if !c.current(gen) {
		return ErrNegotiationCancelled
	}
	return err
}

func (c *Controller) relay(gen uint64, msg protocol.Negotiation) error {
	if !c.current(gen) {
		return ErrNegotiationCancelled
	}
	return c.signal.Signal(msg)
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}
