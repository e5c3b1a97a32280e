package call

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/Warpcall/cli/internal/media"
	"github.com/BioHazard786/Warpcall/cli/internal/negotiation"
	"github.com/BioHazard786/Warpcall/cli/internal/session"
	"github.com/BioHazard786/Warpcall/cli/internal/signaling"
	"github.com/BioHazard786/Warpcall/cli/internal/webrtc"
	"github.com/BioHazard786/Warpcall/internal/protocol"
)

type fakeTransport struct {
	sent   chan *protocol.Message
	mu     sync.Mutex
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(chan *protocol.Message, 64)}
}

func (t *fakeTransport) SendMessage(msg *protocol.Message) error {
	t.sent <- msg
	return nil
}

func (t *fakeTransport) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *fakeTransport) next(tb testing.TB) *protocol.Message {
	tb.Helper()
	select {
	case msg := <-t.sent:
		return msg
	case <-time.After(2 * time.Second):
		tb.Fatal("timed out waiting for an outgoing message")
		return nil
	}
}

func (t *fakeTransport) nextSignal(tb testing.TB) protocol.Negotiation {
	tb.Helper()
	msg := t.next(tb)
	require.Equal(tb, protocol.TypeMessage, msg.Type)
	n, err := protocol.Decode(msg.Payload)
	require.NoError(tb, err)
	return n
}

type fakeStream struct {
	mu     sync.Mutex
	closed bool
}

func (s *fakeStream) Tracks() []pion.TrackLocal { return nil }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeSource struct {
	stream *fakeStream
	err    error
}

func (s *fakeSource) Open(context.Context, media.Options) (media.Stream, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.stream, nil
}

type fakeLink struct {
	mu     sync.Mutex
	closed bool
	chat   []string
	remote []protocol.Kind
}

func (l *fakeLink) CreateOffer(context.Context) (string, error)  { return "v=0 offer", nil }
func (l *fakeLink) CreateAnswer(context.Context) (string, error) { return "v=0 answer", nil }
func (l *fakeLink) SetLocalDescription(protocol.Kind, string) error {
	return nil
}

func (l *fakeLink) SetRemoteDescription(kind protocol.Kind, _ string) error {
	l.mu.Lock()
	l.remote = append(l.remote, kind)
	l.mu.Unlock()
	return nil
}

func (l *fakeLink) AddRemoteCandidate(protocol.Negotiation) error { return nil }
func (l *fakeLink) OnLocalCandidate(func(protocol.Negotiation))   {}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

func (l *fakeLink) SendChat(text string) error {
	l.mu.Lock()
	l.chat = append(l.chat, text)
	l.mu.Unlock()
	return nil
}

func (l *fakeLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

type nopReporter struct{}

func (nopReporter) State(session.State)                   {}
func (nopReporter) Joined(string, *protocol.RoomSnapshot) {}
func (nopReporter) PeerJoined(string)                     {}
func (nopReporter) PeerLeft(string)                       {}
func (nopReporter) LinkState(string)                      {}
func (nopReporter) RemoteTrack(string)                    {}
func (nopReporter) Chat(string, string, time.Time)        {}
func (nopReporter) Notice(string)                         {}

type fixture struct {
	call      *Call
	transport *fakeTransport
	events    chan signaling.Event
	stream    *fakeStream
	source    *fakeSource

	mu    sync.Mutex
	links []*fakeLink

	// onBuild runs inside the link factory, before the link is handed over.
	onBuild func()
}

func newFixture() *fixture {
	f := &fixture{
		transport: newFakeTransport(),
		events:    make(chan signaling.Event, 16),
		stream:    &fakeStream{},
	}
	f.source = &fakeSource{stream: f.stream}
	newLink := func([]pion.TrackLocal, webrtc.Events) (Link, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		l := &fakeLink{}
		f.links = append(f.links, l)
		if f.onBuild != nil {
			f.onBuild()
		}
		return l, nil
	}
	f.call = New(Options{RoomID: "r1", Capture: media.Options{Audio: true, Video: true}},
		f.transport, f.events, f.source, newLink, nopReporter{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func (f *fixture) link(i int) *fakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.links[i]
}

func (f *fixture) linkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.links)
}

func (f *fixture) start(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- f.call.Run(ctx) }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("call did not end")
		return nil
	}
}

func TestCall_OffererScenario(t *testing.T) {
	f := newFixture()
	ctx, hangup := context.WithCancel(context.Background())
	done := f.start(ctx)

	join := f.transport.next(t)
	assert.Equal(t, protocol.TypeJoin, join.Type)
	assert.Equal(t, "r1", join.RoomID)

	f.events <- signaling.Event{Kind: signaling.EventJoined, MemberID: "a"}
	f.events <- signaling.Event{Kind: signaling.EventOtherJoined, MemberID: "b"}
	assert.Equal(t, protocol.Offer("v=0 offer"), f.transport.nextSignal(t))

	f.events <- signaling.Event{Kind: signaling.EventSignal, From: "b", Signal: protocol.Answer("v=0 b")}
	require.Eventually(t, func() bool {
		f.link(0).mu.Lock()
		defer f.link(0).mu.Unlock()
		return len(f.link(0).remote) == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, f.call.Say("hello"))

	// B leaves, D joins: a fresh link negotiates with D.
	f.events <- signaling.Event{Kind: signaling.EventPeerLeft, MemberID: "b"}
	f.events <- signaling.Event{Kind: signaling.EventOtherJoined, MemberID: "d"}
	assert.Equal(t, protocol.Offer("v=0 offer"), f.transport.nextSignal(t))
	assert.Equal(t, 2, f.linkCount())
	assert.True(t, f.link(0).isClosed())
	assert.False(t, f.link(1).isClosed())
	assert.Equal(t, session.NegotiatingPeer, f.call.State())

	hangup()
	leave := f.transport.next(t)
	assert.Equal(t, protocol.TypeLeave, leave.Type)

	f.events <- signaling.Event{Kind: signaling.EventLeft}
	require.NoError(t, wait(t, done))

	assert.Equal(t, session.Left, f.call.State())
	assert.True(t, f.link(1).isClosed())
	assert.True(t, f.stream.isClosed())
	assert.True(t, f.transport.isClosed())
}

func TestCall_AnswererScenario(t *testing.T) {
	f := newFixture()
	ctx, hangup := context.WithCancel(context.Background())
	defer hangup()
	done := f.start(ctx)
	f.transport.next(t)

	f.events <- signaling.Event{Kind: signaling.EventJoined, MemberID: "b"}
	f.events <- signaling.Event{Kind: signaling.EventSignal, From: "a", Signal: protocol.Candidate("candidate:1", nil, nil)}
	f.events <- signaling.Event{Kind: signaling.EventSignal, From: "a", Signal: protocol.Offer("v=0 a")}
	assert.Equal(t, protocol.Answer("v=0 answer"), f.transport.nextSignal(t))
	assert.Equal(t, session.Joined, f.call.State())

	f.events <- signaling.Event{Kind: signaling.EventPeerLeft, MemberID: "a"}
	require.Eventually(t, func() bool {
		return errors.Is(f.call.Say("anyone?"), ErrNoPeer)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, session.Unbound, f.call.State())
	assert.True(t, f.link(0).isClosed())

	// A stale answer after the peer left is dropped.
	f.events <- signaling.Event{Kind: signaling.EventSignal, From: "a", Signal: protocol.Answer("late")}

	f.events <- signaling.Event{Kind: signaling.EventDisconnect, Reason: "server shutting down"}
	err := wait(t, done)
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.Equal(t, 1, f.linkCount())
	assert.True(t, f.stream.isClosed())
}

func TestCall_RoomFull(t *testing.T) {
	f := newFixture()
	done := f.start(context.Background())
	f.transport.next(t)

	f.events <- signaling.Event{Kind: signaling.EventFull, Room: &protocol.RoomSnapshot{ID: "r1", Members: []string{"a", "b"}, Capacity: 2}}
	err := wait(t, done)

	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "join", callErr.Op)
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Equal(t, session.Left, f.call.State())
	assert.True(t, f.transport.isClosed())
	assert.True(t, f.stream.isClosed())
}

func TestCall_CaptureUnavailableSkipsJoin(t *testing.T) {
	f := newFixture()
	f.source.err = media.ErrCaptureUnavailable

	err := wait(t, f.start(context.Background()))
	assert.ErrorIs(t, err, media.ErrCaptureUnavailable)
	assert.Empty(t, f.transport.sent)
	assert.Equal(t, session.Init, f.call.State())
}

func TestCall_HangupBeforeAdmission(t *testing.T) {
	f := newFixture()
	ctx, hangup := context.WithCancel(context.Background())
	done := f.start(ctx)
	f.transport.next(t)

	hangup()
	require.NoError(t, wait(t, done))
	assert.True(t, f.transport.isClosed())
}

func TestCall_LostConnection(t *testing.T) {
	f := newFixture()
	done := f.start(context.Background())
	f.transport.next(t)

	f.events <- signaling.Event{Kind: signaling.EventJoined, MemberID: "a"}
	close(f.events)

	assert.ErrorIs(t, wait(t, done), ErrDisconnected)
	assert.Equal(t, session.Left, f.call.State())
}

func TestCall_SayIgnoresLinkDiscardedDuringBuild(t *testing.T) {
	f := newFixture()
	f.call.ctx = context.Background()
	f.call.stream = f.stream

	// The peer leaves while its link is still being built.
	f.onBuild = f.call.TeardownPeerLink

	err := f.call.BeginNegotiation(false)
	require.ErrorIs(t, err, negotiation.ErrNegotiationCancelled)
	require.Equal(t, 1, f.linkCount())
	assert.True(t, f.link(0).isClosed())

	assert.ErrorIs(t, f.call.Say("hello"), ErrNoPeer)
	assert.Empty(t, f.link(0).chat)
}
