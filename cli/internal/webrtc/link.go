package webrtc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpcall/cli/internal/config"
	"github.com/BioHazard786/Warpcall/internal/protocol"
)

const (
	chatLabel     = "chat"
	chatChannelID = 0
)

// ErrChatNotOpen is returned when sending before the chat channel opens.
var ErrChatNotOpen = errors.New("chat channel not open")

// Events are the callbacks a Link reports through. Any field may be nil.
type Events struct {
	OnState       func(state string)
	OnRemoteTrack func(kind string)
	OnChat        func(msg ChatPayload)
	OnHello       func(msg HelloPayload)
}

// LinkOptions configure a Link.
type LinkOptions struct {
	Config *config.Config
	// Tracks are the local media tracks to send.
	Tracks []pion.TrackLocal
	// Name is shown to the peer in chat.
	Name    string
	Version string
	Events  Events
	Log     *slog.Logger
}

// NewAPI returns a pion API with the default codecs and our logger factory.
func NewAPI(loggerFactory logging.LoggerFactory) (*pion.API, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	se := pion.SettingEngine{}
	if loggerFactory != nil {
		se.LoggerFactory = loggerFactory
	}

	return pion.NewAPI(pion.WithMediaEngine(m), pion.WithSettingEngine(se)), nil
}

// Configuration builds the ICE configuration from cfg.
func Configuration(cfg *config.Config) pion.Configuration {
	var iceServers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); len(stun) > 0 {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || ShouldForceRelay()) {
		policy = pion.ICETransportPolicyRelay
	}

	return pion.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}

// Link is a pion peer connection carrying call media and a chat channel.
type Link struct {
	pc   *pion.PeerConnection
	chat *pion.DataChannel
	opts LinkOptions
	log  *slog.Logger

	packets   atomic.Uint64
	closeOnce sync.Once
}

// NewLink creates a peer connection with our tracks attached, receive-only
// transceivers for media kinds we do not send, and the chat channel.
func NewLink(api *pion.API, opts LinkOptions) (*Link, error) {
	pc, err := api.NewPeerConnection(Configuration(opts.Config))
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	l := &Link{pc: pc, opts: opts, log: opts.Log}
	if err := l.setup(); err != nil {
		pc.Close()
		return nil, err
	}
	return l, nil
}

func (l *Link) setup() error {
	sending := map[pion.RTPCodecType]bool{}
	for _, track := range l.opts.Tracks {
		sender, err := l.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
		sending[track.Kind()] = true
		go drainRTCP(sender)
	}

	for _, kind := range []pion.RTPCodecType{pion.RTPCodecTypeAudio, pion.RTPCodecTypeVideo} {
		if sending[kind] {
			continue
		}
		if _, err := l.pc.AddTransceiverFromKind(kind, pion.RTPTransceiverInit{
			Direction: pion.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}

	// Both sides create the same negotiated channel, so neither waits for
	// the other to announce it.
	negotiated := true
	ordered := true
	id := uint16(chatChannelID)
	chat, err := l.pc.CreateDataChannel(chatLabel, &pion.DataChannelInit{
		Negotiated: &negotiated,
		Ordered:    &ordered,
		ID:         &id,
	})
	if err != nil {
		return fmt.Errorf("create chat channel: %w", err)
	}
	l.chat = chat
	l.setupChatHandlers()

	l.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		l.log.Debug("peer connection state", "state", state.String())
		if fn := l.opts.Events.OnState; fn != nil {
			fn(state.String())
		}
	})

	l.pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		kind := track.Kind().String()
		l.log.Debug("remote track", "kind", kind, "codec", track.Codec().MimeType)
		if fn := l.opts.Events.OnRemoteTrack; fn != nil {
			fn(kind)
		}
		go l.sink(track)
	})

	return nil
}

func (l *Link) setupChatHandlers() {
	l.chat.OnOpen(func() {
		l.log.Debug("chat channel open")
		data, err := EncodeMessage(MessageTypeHello, HelloPayload{Name: l.opts.Name, ClientVersion: l.opts.Version})
		if err == nil {
			_ = l.chat.Send(data)
		}
	})

	l.chat.OnMessage(func(msg pion.DataChannelMessage) {
		decoded, err := DecodeMessage(msg.Data)
		if err != nil {
			l.log.Warn("dropping chat frame", "error", err)
			return
		}

		switch m := decoded.(type) {
		case ChatPayload:
			if fn := l.opts.Events.OnChat; fn != nil {
				fn(m)
			}
		case HelloPayload:
			if fn := l.opts.Events.OnHello; fn != nil {
				fn(m)
			}
		}
	})
}

// sink consumes remote media. Rendering belongs to an external display;
// here packets are only counted.
func (l *Link) sink(track *pion.TrackRemote) {
	for {
		if _, _, err := track.ReadRTP(); err != nil {
			return
		}
		l.packets.Add(1)
	}
}

// drainRTCP reads incoming RTCP so interceptors keep working.
func drainRTCP(sender *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// ReceivedPackets returns how many remote RTP packets arrived.
func (l *Link) ReceivedPackets() uint64 {
	return l.packets.Load()
}

// SendChat sends one line of text to the peer.
func (l *Link) SendChat(text string) error {
	if l.chat.ReadyState() != pion.DataChannelStateOpen {
		return ErrChatNotOpen
	}
	data, err := EncodeMessage(MessageTypeChat, ChatPayload{
		From:   l.opts.Name,
		Text:   text,
		SentAt: time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return l.chat.Send(data)
}

func (l *Link) CreateOffer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (l *Link) CreateAnswer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (l *Link) SetLocalDescription(kind protocol.Kind, sdp string) error {
	t, err := sdpType(kind)
	if err != nil {
		return err
	}
	return l.pc.SetLocalDescription(pion.SessionDescription{Type: t, SDP: sdp})
}

func (l *Link) SetRemoteDescription(kind protocol.Kind, sdp string) error {
	t, err := sdpType(kind)
	if err != nil {
		return err
	}
	return l.pc.SetRemoteDescription(pion.SessionDescription{Type: t, SDP: sdp})
}

func (l *Link) AddRemoteCandidate(c protocol.Negotiation) error {
	return l.pc.AddICECandidate(pion.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	})
}

func (l *Link) OnLocalCandidate(fn func(protocol.Negotiation)) {
	l.pc.OnICECandidate(func(c *pion.ICECandidate) {
		// nil marks the end of gathering.
		if c == nil {
			return
		}
		init := c.ToJSON()
		fn(protocol.Candidate(init.Candidate, init.SDPMid, init.SDPMLineIndex))
	})
}

func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.pc.Close()
	})
	return err
}

func sdpType(kind protocol.Kind) (pion.SDPType, error) {
	switch kind {
	case protocol.KindOffer:
		return pion.SDPTypeOffer, nil
	case protocol.KindAnswer:
		return pion.SDPTypeAnswer, nil
	default:
		return pion.SDPTypeUnknown, fmt.Errorf("%w: %q is not a description", protocol.ErrUnknownMessageType, kind)
	}
}
