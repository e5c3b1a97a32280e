package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownMessageType = errors.New("unknown negotiation message type")
	ErrInvalidMessage     = errors.New("invalid negotiation message")
)

// Kind tags a Negotiation.
type Kind string

const (
	KindOffer     Kind = "offer"
	KindAnswer    Kind = "answer"
	KindCandidate Kind = "candidate"
)

// Negotiation is one of Offer, Answer or Candidate. Only the fields that
// belong to Type are meaningful; construct values with Offer, Answer and
// Candidate rather than by hand.
type Negotiation struct {
	Type Kind

	// SDP is set for offers and answers.
	SDP string

	// Candidate, SDPMid and SDPMLineIndex are set for candidates. A nil
	// pointer is encoded as JSON null.
	Candidate     string
	SDPMid        *string
	SDPMLineIndex *uint16
}

// Offer builds an offer message.
func Offer(sdp string) Negotiation {
	return Negotiation{Type: KindOffer, SDP: sdp}
}

// Answer builds an answer message.
func Answer(sdp string) Negotiation {
	return Negotiation{Type: KindAnswer, SDP: sdp}
}

// Candidate builds a trickled ICE candidate message.
func Candidate(candidate string, sdpMid *string, sdpMLineIndex *uint16) Negotiation {
	return Negotiation{
		Type:          KindCandidate,
		Candidate:     candidate,
		SDPMid:        sdpMid,
		SDPMLineIndex: sdpMLineIndex,
	}
}

// IsDescription reports whether n carries a session description.
func (n Negotiation) IsDescription() bool {
	return n.Type == KindOffer || n.Type == KindAnswer
}

// Validate checks that n is well formed for its type.
func (n Negotiation) Validate() error {
	switch n.Type {
	case KindOffer, KindAnswer:
		if n.SDP == "" {
			return fmt.Errorf("%w: %s without sdp", ErrInvalidMessage, n.Type)
		}
		return nil
	case KindCandidate:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, string(n.Type))
	}
}

type descriptionWire struct {
	Type Kind   `json:"type"`
	SDP  string `json:"sdp"`
}

type candidateWire struct {
	Type          Kind    `json:"type"`
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

// anyWire is the union of every field, used when decoding.
type anyWire struct {
	Type          Kind    `json:"type"`
	SDP           *string `json:"sdp"`
	Candidate     *string `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

// MarshalJSON emits only the fields that belong to the message type.
func (n Negotiation) MarshalJSON() ([]byte, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	if n.Type == KindCandidate {
		return json.Marshal(candidateWire{
			Type:          n.Type,
			Candidate:     n.Candidate,
			SDPMid:        n.SDPMid,
			SDPMLineIndex: n.SDPMLineIndex,
		})
	}
	return json.Marshal(descriptionWire{Type: n.Type, SDP: n.SDP})
}

func (n *Negotiation) UnmarshalJSON(data []byte) error {
	var w anyWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	var out Negotiation
	switch w.Type {
	case KindOffer, KindAnswer:
		if w.SDP == nil {
			return fmt.Errorf("%w: %s without sdp", ErrInvalidMessage, w.Type)
		}
		out = Negotiation{Type: w.Type, SDP: *w.SDP}
	case KindCandidate:
		if w.Candidate == nil {
			return fmt.Errorf("%w: candidate field missing", ErrInvalidMessage)
		}
		out = Candidate(*w.Candidate, w.SDPMid, w.SDPMLineIndex)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, string(w.Type))
	}

	if err := out.Validate(); err != nil {
		return err
	}
	*n = out
	return nil
}

// Encode renders n in its wire shape.
func Encode(n Negotiation) ([]byte, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(n)
}

// Decode parses a relayed payload.
func Decode(data []byte) (Negotiation, error) {
	var n Negotiation
	if err := json.Unmarshal(data, &n); err != nil {
		if errors.Is(err, ErrUnknownMessageType) || errors.Is(err, ErrInvalidMessage) {
			return Negotiation{}, err
		}
		return Negotiation{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return n, nil
}
