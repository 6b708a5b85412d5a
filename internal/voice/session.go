package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ALCHACAS2/Dots-Boxes/internal/channel"
	"github.com/ALCHACAS2/Dots-Boxes/pkg/types"
	"github.com/pion/webrtc/v4"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("voice session closed")
var ErrReconnectNotAllowed = errors.New("reconnect only from failed or disconnected")

const DefaultConnectTimeout = 10 * time.Second

type Config struct {
	RoomCode       string
	Role           Role
	ConnectTimeout time.Duration
}

type Deps struct {
	Channel    channel.Channel
	NewPeer    PeerFactory
	Microphone Microphone
	Output     Output      // optional
	OnChange   func(View)  // optional, called on the session goroutine
	Logger     *zap.Logger // optional
}

// View is a read-only copy of the session state.
type View struct {
	Role          Role
	Phase         Phase
	Signaling     string
	Connecting    bool // controls blocked while waiting for the link
	MicEnabled    bool
	AudioEnabled  bool
	HasLocalTrack bool

	// LocalDescription is the type of the last offer or answer we sent, or "".
	LocalDescription string
}

type sessionMsg interface{ isVoiceMsg() }

type startMsg struct{}
type signalMsg struct{ data types.SignalData }
type localCandidateMsg struct {
	gen  int
	cand webrtc.ICECandidateInit
}
type peerStateMsg struct {
	gen   int
	phase Phase
}
type timeoutMsg struct{ gen int }
type toggleMicMsg struct {
	ctx   context.Context
	reply chan error
}
type toggleAudioMsg struct{}
type reconnectMsg struct{ reply chan error }
type forceEnableMsg struct{}
type viewMsg struct{ reply chan View }
type closeMsg struct{ reply chan error }

func (startMsg) isVoiceMsg()          {}
func (signalMsg) isVoiceMsg()         {}
func (localCandidateMsg) isVoiceMsg() {}
func (peerStateMsg) isVoiceMsg()      {}
func (timeoutMsg) isVoiceMsg()        {}
func (toggleMicMsg) isVoiceMsg()      {}
func (toggleAudioMsg) isVoiceMsg()    {}
func (reconnectMsg) isVoiceMsg()      {}
func (forceEnableMsg) isVoiceMsg()    {}
func (viewMsg) isVoiceMsg()           {}
func (closeMsg) isVoiceMsg()          {}

// Session negotiates one peer-to-peer audio stream with the other seat of a
// room. All state lives on the session goroutine; handlers only post to it.
type Session struct {
	cfg  Config
	deps Deps
	log  *zap.Logger

	inbox chan sessionMsg
	ctx   context.Context
	done  chan struct{}
	off   func()

	phase      Phase
	signaling  signaling
	connecting bool
	micOn      bool
	audioOn    bool
	link       PeerLink
	linkGen    int
	localDesc  *webrtc.SessionDescription
	track      LocalTrack
	timer      *time.Timer
	timerGen   int
}

func Start(ctx context.Context, cfg Config, deps Deps) (*Session, error) {
	if deps.Channel == nil || deps.NewPeer == nil || deps.Microphone == nil {
		return nil, errors.New("voice: channel, peer factory and microphone are required")
	}
	if cfg.Role != RoleInitiator && cfg.Role != RoleResponder {
		return nil, fmt.Errorf("voice: unknown role %q", cfg.Role)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Session{
		cfg:     cfg,
		deps:    deps,
		log:     logger.Named("voice").With(zap.String("room", cfg.RoomCode), zap.String("role", string(cfg.Role))),
		inbox:   make(chan sessionMsg, 64),
		ctx:     ctx,
		done:    make(chan struct{}),
		phase:   PhaseNew,
		audioOn: true,
	}

	s.off = deps.Channel.On(types.EventSignal, func(data json.RawMessage) {
		var sig types.Signal
		if err := json.Unmarshal(data, &sig); err != nil {
			s.log.Warn("dropping malformed signal", zap.Error(err))
			return
		}
		s.post(signalMsg{data: sig.Data})
	})

	go s.loop()
	s.post(startMsg{})
	return s, nil
}

func (s *Session) post(m sessionMsg) bool {
	select {
	case s.inbox <- m:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			if err := s.teardown(); err != nil {
				s.log.Warn("teardown", zap.Error(err))
			}
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case startMsg:
				s.begin()

			case signalMsg:
				s.handleSignal(msg.data)

			case localCandidateMsg:
				if msg.gen != s.linkGen {
					break
				}
				cand := msg.cand
				s.emit(types.SignalData{Candidate: &cand})

			case peerStateMsg:
				if msg.gen != s.linkGen {
					break
				}
				s.log.Debug("link state", zap.String("phase", string(msg.phase)))
				s.phase = msg.phase
				if msg.phase != PhaseConnecting {
					s.unblock()
				}

			case timeoutMsg:
				if msg.gen == s.timerGen && s.connecting {
					s.log.Info("connect timeout, unblocking controls", zap.String("phase", string(s.phase)))
					s.connecting = false
				}

			case toggleMicMsg:
				msg.reply <- s.toggleMic(msg.ctx)

			case toggleAudioMsg:
				s.audioOn = !s.audioOn
				if s.deps.Output != nil {
					s.deps.Output.SetMuted(!s.audioOn)
				}

			case reconnectMsg:
				if s.phase != PhaseFailed && s.phase != PhaseDisconnected {
					msg.reply <- ErrReconnectNotAllowed
					break
				}
				s.log.Info("reconnecting")
				s.restart()
				msg.reply <- nil

			case forceEnableMsg:
				s.unblock()
				if s.phase == PhaseConnecting {
					s.phase = PhaseDisconnected
				}

			case viewMsg:
				msg.reply <- s.view()
				continue

			case closeMsg:
				msg.reply <- s.teardown()
				return
			}
			s.changed()
		}
	}
}

func (s *Session) view() View {
	return View{
		Role:          s.cfg.Role,
		Phase:         s.phase,
		Signaling:     s.signaling.String(),
		Connecting:    s.connecting,
		MicEnabled:    s.micOn,
		AudioEnabled:  s.audioOn,
		HasLocalTrack: s.track != nil,

		LocalDescription: s.localDescType(),
	}
}

func (s *Session) localDescType() string {
	if s.localDesc == nil {
		return ""
	}
	return s.localDesc.Type.String()
}

func (s *Session) changed() {
	if s.deps.OnChange != nil {
		s.deps.OnChange(s.view())
	}
}

func (s *Session) begin() {
	if err := s.newLink(); err != nil {
		s.log.Warn("create peer link", zap.Error(err))
		s.phase = PhaseFailed
		s.unblock()
		return
	}
	if s.cfg.Role == RoleInitiator {
		s.sendOffer()
	}
}

// newLink discards the current link and starts a fresh negotiation cycle.
func (s *Session) newLink() error {
	if s.link != nil {
		if err := s.link.Close(); err != nil {
			s.log.Debug("close old link", zap.Error(err))
		}
		s.link = nil
	}
	s.linkGen++
	s.signaling = signalStable
	s.localDesc = nil
	s.phase = PhaseConnecting
	s.armTimer()

	gen := s.linkGen
	link, err := s.deps.NewPeer(PeerEvents{
		OnCandidate: func(c webrtc.ICECandidateInit) { s.post(localCandidateMsg{gen: gen, cand: c}) },
		OnStateChange: func(p Phase) {
			s.post(peerStateMsg{gen: gen, phase: p})
		},
	})
	if err != nil {
		return err
	}
	s.link = link

	if s.track != nil {
		if err := link.AttachTrack(s.track); err != nil {
			s.log.Warn("attach existing track", zap.Error(err))
		}
	}
	return nil
}

func (s *Session) armTimer() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerGen++
	s.connecting = true
	gen := s.timerGen
	s.timer = time.AfterFunc(s.cfg.ConnectTimeout, func() { s.post(timeoutMsg{gen: gen}) })
}

func (s *Session) unblock() {
	s.connecting = false
	if s.timer != nil {
		s.timer.Stop()
	}
}

// restart replaces the link and replays the role's first step.
func (s *Session) restart() {
	if err := s.newLink(); err != nil {
		s.log.Warn("recreate peer link", zap.Error(err))
		s.phase = PhaseFailed
		s.unblock()
		return
	}
	if s.cfg.Role == RoleInitiator {
		s.sendOffer()
	}
}

func (s *Session) sendOffer() {
	offer, err := s.link.CreateOffer()
	if err == nil {
		err = s.link.SetLocalDescription(offer)
	}
	if err != nil {
		s.log.Warn("create offer", zap.Error(err))
		s.phase = PhaseFailed
		s.unblock()
		return
	}
	s.localDesc = &offer
	s.signaling = signalHaveLocalOffer
	s.emit(types.SignalData{Offer: &offer})
}

func (s *Session) handleSignal(data types.SignalData) {
	set := 0
	for _, present := range []bool{data.Offer != nil, data.Answer != nil, data.Candidate != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		s.log.Warn("dropping signal without exactly one payload", zap.Int("payloads", set))
		return
	}
	if s.link == nil {
		s.log.Debug("dropping signal, no link")
		return
	}

	switch {
	case data.Offer != nil:
		s.handleOffer(*data.Offer)
	case data.Answer != nil:
		s.handleAnswer(*data.Answer)
	case data.Candidate != nil:
		s.handleCandidate(*data.Candidate)
	}
}

func (s *Session) handleOffer(offer webrtc.SessionDescription) {
	if s.cfg.Role != RoleResponder {
		s.log.Warn("dropping offer: initiator does not answer")
		return
	}
	if s.signaling != signalStable {
		// Peer started over; so do we.
		s.log.Warn("offer in wrong phase, restarting negotiation", zap.String("signaling", s.signaling.String()))
		if err := s.newLink(); err != nil {
			s.log.Warn("recreate peer link", zap.Error(err))
			s.phase = PhaseFailed
			s.unblock()
			return
		}
	}

	if s.track == nil {
		track, err := s.acquire(s.ctx)
		if err != nil {
			s.log.Warn("answering without microphone", zap.Error(err))
		} else {
			track.SetEnabled(false)
			s.track = track
			if err := s.link.AttachTrack(track); err != nil {
				s.log.Warn("attach track", zap.Error(err))
			}
		}
	}

	if err := s.link.SetRemoteDescription(offer); err != nil {
		s.log.Warn("set remote offer", zap.Error(err))
		s.restart()
		return
	}
	s.signaling = signalNegotiated

	answer, err := s.link.CreateAnswer()
	if err == nil {
		err = s.link.SetLocalDescription(answer)
	}
	if err != nil {
		s.log.Warn("create answer", zap.Error(err))
		s.restart()
		return
	}
	s.localDesc = &answer
	s.emit(types.SignalData{Answer: &answer})
}

func (s *Session) handleAnswer(answer webrtc.SessionDescription) {
	if s.cfg.Role != RoleInitiator || s.signaling != signalHaveLocalOffer {
		s.log.Warn("dropping answer in wrong phase", zap.String("signaling", s.signaling.String()))
		return
	}
	if err := s.link.SetRemoteDescription(answer); err != nil {
		s.log.Warn("set remote answer", zap.Error(err))
		s.restart()
		return
	}
	s.signaling = signalNegotiated
}

func (s *Session) handleCandidate(c webrtc.ICECandidateInit) {
	if s.signaling != signalNegotiated {
		s.log.Debug("dropping candidate before remote description")
		return
	}
	if err := s.link.AddICECandidate(c); err != nil {
		s.log.Warn("add candidate", zap.Error(err))
	}
}

func (s *Session) acquire(ctx context.Context) (LocalTrack, error) {
	actx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	track, err := s.deps.Microphone.Acquire(actx)
	if err != nil {
		return nil, ClassifyMediaError(err)
	}
	return track, nil
}

func (s *Session) toggleMic(ctx context.Context) error {
	if s.track != nil {
		s.micOn = !s.micOn
		s.track.SetEnabled(s.micOn)
		return nil
	}

	track, err := s.acquire(ctx)
	if err != nil {
		s.micOn = false
		s.log.Info("microphone unavailable", zap.Error(err))
		return err
	}
	s.track = track
	if s.link != nil {
		if err := s.link.AttachTrack(track); err != nil {
			s.log.Warn("attach track", zap.Error(err))
		}
	}
	track.SetEnabled(true)
	s.micOn = true
	return nil
}

func (s *Session) emit(data types.SignalData) {
	sig := types.Signal{RoomCode: types.NormalizeRoomCode(s.cfg.RoomCode), Data: data}
	if err := s.deps.Channel.Emit(s.ctx, types.EventSignal, sig); err != nil {
		s.log.Warn("emit signal", zap.Error(err))
	}
}

// teardown releases the microphone and the link and resets every flag.
func (s *Session) teardown() error {
	s.off()
	if s.timer != nil {
		s.timer.Stop()
	}

	var err error
	if s.track != nil {
		err = multierr.Append(err, s.track.Stop())
		s.track = nil
	}
	if s.link != nil {
		err = multierr.Append(err, s.link.Close())
		s.link = nil
	}
	s.linkGen++
	s.phase = PhaseNew
	s.signaling = signalStable
	s.localDesc = nil
	s.connecting = false
	s.micOn = false
	s.audioOn = true
	return err
}

// ToggleMic acquires the microphone on first use, then flips the track's
// enabled flag. A *MediaError reports why acquisition failed.
func (s *Session) ToggleMic(ctx context.Context) error {
	reply := make(chan error, 1)
	if !s.post(toggleMicMsg{ctx: ctx, reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrClosed
	}
}

// ToggleAudio mutes or unmutes the remote stream locally.
func (s *Session) ToggleAudio() {
	s.post(toggleAudioMsg{})
}

func (s *Session) Reconnect() error {
	reply := make(chan error, 1)
	if !s.post(reconnectMsg{reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrClosed
	}
}

// ForceEnableControls unblocks the controls without waiting for the link.
func (s *Session) ForceEnableControls() {
	s.post(forceEnableMsg{})
}

func (s *Session) View() View {
	reply := make(chan View, 1)
	if !s.post(viewMsg{reply: reply}) {
		return View{Role: s.cfg.Role, Phase: PhaseNew, AudioEnabled: true}
	}
	select {
	case v := <-reply:
		return v
	case <-s.done:
		return View{Role: s.cfg.Role, Phase: PhaseNew, AudioEnabled: true}
	}
}

// Close stops the microphone and closes the link before returning.
func (s *Session) Close() error {
	reply := make(chan error, 1)
	if !s.post(closeMsg{reply: reply}) {
		<-s.done
		return nil
	}
	select {
	case err := <-reply:
		<-s.done
		return err
	case <-s.done:
		return nil
	}
}
