package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	calls    []string
	joinErr  error
	beginErr error
}

func (r *recorder) Join() error {
	r.calls = append(r.calls, "join")
	return r.joinErr
}

func (r *recorder) Leave() error {
	r.calls = append(r.calls, "leave")
	return nil
}

func (r *recorder) BeginNegotiation(fresh bool) error {
	if fresh {
		r.calls = append(r.calls, "begin-fresh")
	} else {
		r.calls = append(r.calls, "begin")
	}
	return r.beginErr
}

func (r *recorder) TeardownPeerLink() { r.calls = append(r.calls, "teardown-link") }
func (r *recorder) TeardownCapture()  { r.calls = append(r.calls, "teardown-capture") }
func (r *recorder) Disconnect()       { r.calls = append(r.calls, "disconnect") }

func fire(t *testing.T, m *Machine, events ...Event) {
	t.Helper()
	for _, ev := range events {
		_, err := m.Fire(ev)
		require.NoError(t, err, ev.String())
	}
}

func TestMachine_NegotiateUnbindRenegotiate(t *testing.T) {
	rec := &recorder{}
	m := NewMachine(rec)
	assert.Equal(t, Init, m.State())

	fire(t, m, UserJoin)
	assert.Equal(t, Init, m.State())

	fire(t, m, JoinedNotice, OtherJoinedNotice)
	assert.Equal(t, NegotiatingPeer, m.State())

	fire(t, m, PeerLeftNotice)
	assert.Equal(t, Unbound, m.State())

	fire(t, m, OtherJoinedNotice)
	assert.Equal(t, NegotiatingPeer, m.State())

	assert.Equal(t, []string{"join", "begin", "teardown-link", "begin-fresh"}, rec.calls)
}

func TestMachine_FullDisconnects(t *testing.T) {
	rec := &recorder{}
	m := NewMachine(rec)

	fire(t, m, UserJoin, FullNotice)
	assert.Equal(t, Left, m.State())
	assert.Equal(t, []string{"join", "disconnect"}, rec.calls)
}

func TestMachine_UserLeave(t *testing.T) {
	for _, prefix := range [][]Event{
		{JoinedNotice},
		{JoinedNotice, OtherJoinedNotice},
		{JoinedNotice, OtherJoinedNotice, PeerLeftNotice},
	} {
		rec := &recorder{}
		m := NewMachine(rec)
		fire(t, m, prefix...)
		rec.calls = nil

		fire(t, m, UserLeave)
		assert.Equal(t, Left, m.State())
		assert.Equal(t, []string{"leave", "teardown-link", "teardown-capture"}, rec.calls)

		rec.calls = nil
		fire(t, m, LeftNotice)
		assert.Equal(t, Left, m.State())
		assert.Equal(t, []string{"disconnect"}, rec.calls)
	}
}

func TestMachine_AnswererUnbindsOnPeerLeft(t *testing.T) {
	rec := &recorder{}
	m := NewMachine(rec)

	fire(t, m, JoinedNotice, PeerLeftNotice)
	assert.Equal(t, Unbound, m.State())
	assert.Equal(t, []string{"teardown-link"}, rec.calls)
}

func TestMachine_LeftAndDisconnectFromAnyState(t *testing.T) {
	for _, s := range []State{Init, Joined, NegotiatingPeer, Unbound, Left} {
		m := NewMachine(&recorder{})
		m.state = s
		fire(t, m, LeftNotice)
		assert.Equal(t, Left, m.State())

		rec := &recorder{}
		m = NewMachine(rec)
		m.state = s
		fire(t, m, Disconnected)
		assert.Equal(t, Left, m.State())
		assert.Equal(t, []string{"teardown-link", "teardown-capture"}, rec.calls)
	}
}

func TestMachine_IllegalTransitions(t *testing.T) {
	cases := []struct {
		from State
		ev   Event
	}{
		{Init, OtherJoinedNotice},
		{Init, PeerLeftNotice},
		{Init, UserLeave},
		{Joined, JoinedNotice},
		{Joined, UserJoin},
		{NegotiatingPeer, OtherJoinedNotice},
		{Unbound, PeerLeftNotice},
		{Left, UserJoin},
		{Left, JoinedNotice},
		{Left, UserLeave},
	}

	for _, tc := range cases {
		rec := &recorder{}
		m := NewMachine(rec)
		m.state = tc.from

		got, err := m.Fire(tc.ev)
		assert.ErrorIs(t, err, ErrIllegalTransition, "%s in %s", tc.ev, tc.from)
		assert.Equal(t, tc.from, got)
		assert.Equal(t, tc.from, m.State())
		assert.Empty(t, rec.calls)
	}
}

func TestMachine_EffectErrorKeepsTransition(t *testing.T) {
	boom := errors.New("no offer")
	rec := &recorder{beginErr: boom}
	m := NewMachine(rec)

	fire(t, m, JoinedNotice)
	state, err := m.Fire(OtherJoinedNotice)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, NegotiatingPeer, state)

	// Still responsive to later room events.
	fire(t, m, PeerLeftNotice)
	assert.Equal(t, Unbound, m.State())
}

func TestMachine_HookRunsBeforeEffects(t *testing.T) {
	rec := &recorder{}
	m := NewMachine(rec)

	var seen []State
	var callsAtHook []int
	m.OnTransition(func(from, to State, ev Event) {
		seen = append(seen, to)
		callsAtHook = append(callsAtHook, len(rec.calls))
		assert.Equal(t, to, m.State())
	})

	fire(t, m, JoinedNotice, OtherJoinedNotice)
	assert.Equal(t, []State{Joined, NegotiatingPeer}, seen)
	assert.Equal(t, []int{0, 0}, callsAtHook)
	assert.Equal(t, []string{"begin"}, rec.calls)
}
