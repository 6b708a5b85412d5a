package voice

import (
	"github.com/ALCHACAS2/Dots-Boxes/pkg/types"
	"github.com/pion/webrtc/v4"
)

type Phase string

const (
	PhaseNew          Phase = "new"
	PhaseConnecting   Phase = "connecting"
	PhaseConnected    Phase = "connected"
	PhaseFailed       Phase = "failed"
	PhaseDisconnected Phase = "disconnected"
)

type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// RoleFor makes the first player in the room the initiator.
func RoleFor(players []types.Player, self string) Role {
	if len(players) > 0 && players[0].Name == self {
		return RoleInitiator
	}
	return RoleResponder
}

// PeerEvents are invoked from the link's own goroutines.
type PeerEvents struct {
	OnCandidate   func(webrtc.ICECandidateInit)
	OnStateChange func(Phase)
}

// PeerLink is one negotiation object. After an error from any method other
// than AddICECandidate the link is treated as unusable and replaced.
type PeerLink interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	// AttachTrack sends t on the link's audio sender without renegotiating.
	AttachTrack(t LocalTrack) error
	Close() error
}

type PeerFactory func(PeerEvents) (PeerLink, error)

// signaling is where the single offer/answer cycle of a link stands.
type signaling int

const (
	signalStable signaling = iota
	signalHaveLocalOffer
	signalNegotiated
)

func (s signaling) String() string {
	switch s {
	case signalHaveLocalOffer:
		return "have-local-offer"
	case signalNegotiated:
		return "negotiated"
	default:
		return "stable"
	}
}
