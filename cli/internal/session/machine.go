// Package session tracks where a client is in the room lifecycle and decides
// which side effects each room event triggers.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// ErrIllegalTransition is returned for an event the current state does not accept.
var ErrIllegalTransition = errors.New("illegal session transition")

type State int

const (
	Init State = iota
	Joined
	NegotiatingPeer
	Unbound
	Left
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Joined:
		return "joined"
	case NegotiatingPeer:
		return "negotiating"
	case Unbound:
		return "unbound"
	case Left:
		return "left"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event is a room-lifecycle notification or a user action. Negotiation
// messages never drive the machine.
type Event int

const (
	UserJoin Event = iota
	UserLeave
	JoinedNotice
	FullNotice
	OtherJoinedNotice
	PeerLeftNotice
	LeftNotice
	Disconnected
)

func (e Event) String() string {
	switch e {
	case UserJoin:
		return "user-join"
	case UserLeave:
		return "user-leave"
	case JoinedNotice:
		return "joined"
	case FullNotice:
		return "full"
	case OtherJoinedNotice:
		return "other-joined"
	case PeerLeftNotice:
		return "peer-left"
	case LeftNotice:
		return "left"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// Effects performs the side effects of transitions.
type Effects interface {
	// Join asks the server to admit us to the room.
	Join() error
	// Leave tells the server we are leaving the room.
	Leave() error
	// BeginNegotiation starts an offer. fresh is true when a previous peer
	// link was torn down and a new one must be built.
	BeginNegotiation(fresh bool) error
	TeardownPeerLink()
	TeardownCapture()
	// Disconnect closes the signaling channel.
	Disconnect()
}

type effect int

const (
	doJoin effect = iota
	doLeave
	doBegin
	doBeginFresh
	doTeardownLink
	doTeardownCapture
	doDisconnect
)

type transition struct {
	next    State
	effects []effect
}

type key struct {
	from State
	ev   Event
}

var table = map[key]transition{
	{Init, UserJoin}:     {Init, []effect{doJoin}},
	{Init, JoinedNotice}: {Joined, nil},
	{Init, FullNotice}:   {Left, []effect{doDisconnect}},

	{Joined, OtherJoinedNotice}:       {NegotiatingPeer, []effect{doBegin}},
	{NegotiatingPeer, PeerLeftNotice}: {Unbound, []effect{doTeardownLink}},
	{Unbound, OtherJoinedNotice}:      {NegotiatingPeer, []effect{doBeginFresh}},

	// The member that answered never left Joined; losing its peer unbinds it too.
	{Joined, PeerLeftNotice}: {Unbound, []effect{doTeardownLink}},

	{Joined, UserLeave}:          {Left, []effect{doLeave, doTeardownLink, doTeardownCapture}},
	{NegotiatingPeer, UserLeave}: {Left, []effect{doLeave, doTeardownLink, doTeardownCapture}},
	{Unbound, UserLeave}:         {Left, []effect{doLeave, doTeardownLink, doTeardownCapture}},
}

// lookup resolves a transition, including the rows that apply in any state.
func lookup(from State, ev Event) (transition, bool) {
	switch ev {
	case LeftNotice:
		return transition{Left, []effect{doDisconnect}}, true
	case Disconnected:
		return transition{Left, []effect{doTeardownLink, doTeardownCapture}}, true
	}
	t, ok := table[key{from, ev}]
	return t, ok
}

// Machine is a client's session state machine. It is safe for concurrent
// use, but effects run on the caller's goroutine after the state has moved.
type Machine struct {
	mu      sync.Mutex
	state   State
	effects Effects

	onTransition func(from, to State, ev Event)
}

// NewMachine returns a machine in Init.
func NewMachine(effects Effects) *Machine {
	return &Machine{state: Init, effects: effects}
}

// OnTransition registers a hook called after every accepted event, before
// its effects run.
func (m *Machine) OnTransition(fn func(from, to State, ev Event)) {
	m.mu.Lock()
	m.onTransition = fn
	m.mu.Unlock()
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire applies ev. An event the current state does not accept returns
// ErrIllegalTransition and leaves the state unchanged. Effect errors are
// returned joined, but the transition stands.
func (m *Machine) Fire(ev Event) (State, error) {
	m.mu.Lock()
	from := m.state
	t, ok := lookup(from, ev)
	if !ok {
		m.mu.Unlock()
		return from, fmt.Errorf("%w: %s in %s", ErrIllegalTransition, ev, from)
	}
	m.state = t.next
	hook := m.onTransition
	m.mu.Unlock()

	if hook != nil {
		hook(from, t.next, ev)
	}

	var errs []error
	for _, e := range t.effects {
		if err := m.run(e); err != nil {
			errs = append(errs, err)
		}
	}
	return t.next, errors.Join(errs...)
}

func (m *Machine) run(e effect) error {
	switch e {
	case doJoin:
		return m.effects.Join()
	case doLeave:
		return m.effects.Leave()
	case doBegin:
		return m.effects.BeginNegotiation(false)
	case doBeginFresh:
		return m.effects.BeginNegotiation(true)
	case doTeardownLink:
		m.effects.TeardownPeerLink()
	case doTeardownCapture:
		m.effects.TeardownCapture()
	case doDisconnect:
		m.effects.Disconnect()
	}
	return nil
}
