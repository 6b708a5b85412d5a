// Package pionlink backs voice sessions with pion/webrtc.
package pionlink

import (
	"errors"
	"fmt"

	"github.com/ALCHACAS2/Dots-Boxes/internal/voice"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

var ErrForeignTrack = errors.New("track was not produced by this package")

type Config struct {
	STUNURLs []string
	Playback *Playback   // optional; remote audio is drained when nil
	Logger   *zap.Logger // optional
}

// NewFactory returns a voice.PeerFactory producing pion peer connections
// with one sendrecv audio transceiver.
func NewFactory(cfg Config) voice.PeerFactory {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ev voice.PeerEvents) (voice.PeerLink, error) {
		return newLink(cfg, ev, logger.Named("pion"))
	}
}

type link struct {
	pc     *webrtc.PeerConnection
	sender *webrtc.RTPSender
	log    *zap.Logger
}

func newLink(cfg Config, ev voice.PeerEvents, log *zap.Logger) (*link, error) {
	var servers []webrtc.ICEServer
	if len(cfg.STUNURLs) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: cfg.STUNURLs})
	}
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	tr, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("add audio transceiver: %w", err)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || ev.OnCandidate == nil {
			return
		}
		ev.OnCandidate(c.ToJSON())
	})
	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		log.Debug("connection state", zap.String("state", st.String()))
		if p, ok := phaseOf(st); ok && ev.OnStateChange != nil {
			ev.OnStateChange(p)
		}
	})
	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info("remote audio", zap.String("codec", remote.Codec().MimeType))
		for {
			pkt, _, err := remote.ReadRTP()
			if err != nil {
				return
			}
			if cfg.Playback != nil {
				if _, err := cfg.Playback.Write(pkt.Payload); err != nil {
					log.Debug("playback write", zap.Error(err))
				}
			}
		}
	})

	return &link{pc: pc, sender: tr.Sender(), log: log}, nil
}

func phaseOf(st webrtc.PeerConnectionState) (voice.Phase, bool) {
	switch st {
	case webrtc.PeerConnectionStateNew:
		return voice.PhaseNew, true
	case webrtc.PeerConnectionStateConnecting:
		return voice.PhaseConnecting, true
	case webrtc.PeerConnectionStateConnected:
		return voice.PhaseConnected, true
	case webrtc.PeerConnectionStateFailed:
		return voice.PhaseFailed, true
	case webrtc.PeerConnectionStateDisconnected:
		return voice.PhaseDisconnected, true
	default:
		return "", false
	}
}

func (l *link) CreateOffer() (webrtc.SessionDescription, error) {
	return l.pc.CreateOffer(nil)
}

func (l *link) CreateAnswer() (webrtc.SessionDescription, error) {
	return l.pc.CreateAnswer(nil)
}

func (l *link) SetLocalDescription(d webrtc.SessionDescription) error {
	return l.pc.SetLocalDescription(d)
}

func (l *link) SetRemoteDescription(d webrtc.SessionDescription) error {
	return l.pc.SetRemoteDescription(d)
}

func (l *link) AddICECandidate(c webrtc.ICECandidateInit) error {
	return l.pc.AddICECandidate(c)
}

// AttachTrack swaps the sender's track, so the SDP already exchanged stays valid.
func (l *link) AttachTrack(t voice.LocalTrack) error {
	ft, ok := t.(*FileTrack)
	if !ok {
		return ErrForeignTrack
	}
	return l.sender.ReplaceTrack(ft.track)
}

func (l *link) Close() error {
	return l.pc.Close()
}
