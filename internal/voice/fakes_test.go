package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ALCHACAS2/Dots-Boxes/internal/channel"
	"github.com/ALCHACAS2/Dots-Boxes/pkg/types"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errBroken = errors.New("link broken")

type fakeTrack struct {
	enabled atomic.Bool
	stopped atomic.Bool
}

func (t *fakeTrack) SetEnabled(v bool) { t.enabled.Store(v) }
func (t *fakeTrack) Enabled() bool     { return t.enabled.Load() }
func (t *fakeTrack) Stop() error {
	t.stopped.Store(true)
	return nil
}

// --- Microphone ---

type MockMicrophone struct {
	mock.Mock
}

func (m *MockMicrophone) Acquire(ctx context.Context) (LocalTrack, error) {
	args := m.Called(ctx)
	track, _ := args.Get(0).(LocalTrack)
	return track, args.Error(1)
}

// --- Output ---

type MockOutput struct {
	mock.Mock
}

func (m *MockOutput) SetMuted(muted bool) {
	m.Called(muted)
}

// --- PeerLink ---

type fakeLink struct {
	id     int
	events PeerEvents

	mu         sync.Mutex
	remote     []webrtc.SessionDescription
	local      []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	attached   []LocalTrack
	closed     bool
	failRemote bool
}

type linkState struct {
	remote     []webrtc.SessionDescription
	local      []webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	attached   []LocalTrack
	closed     bool
}

func (l *fakeLink) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("offer-%d", l.id)}, nil
}

func (l *fakeLink) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: fmt.Sprintf("answer-%d", l.id)}, nil
}

func (l *fakeLink) SetLocalDescription(d webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.local = append(l.local, d)
	return nil
}

func (l *fakeLink) SetRemoteDescription(d webrtc.SessionDescription) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failRemote {
		return errBroken
	}
	l.remote = append(l.remote, d)
	return nil
}

func (l *fakeLink) AddICECandidate(c webrtc.ICECandidateInit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.candidates = append(l.candidates, c)
	return nil
}

func (l *fakeLink) AttachTrack(t LocalTrack) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attached = append(l.attached, t)
	return nil
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) snapshot() linkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return linkState{
		remote:     append([]webrtc.SessionDescription(nil), l.remote...),
		local:      append([]webrtc.SessionDescription(nil), l.local...),
		candidates: append([]webrtc.ICECandidateInit(nil), l.candidates...),
		attached:   append([]LocalTrack(nil), l.attached...),
		closed:     l.closed,
	}
}

func (l *fakeLink) breakRemote() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failRemote = true
}

type fakeFactory struct {
	mu    sync.Mutex
	links []*fakeLink
}

func (f *fakeFactory) New(ev PeerEvents) (PeerLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := &fakeLink{id: len(f.links) + 1, events: ev}
	f.links = append(f.links, l)
	return l, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.links)
}

func (f *fakeFactory) link(i int) *fakeLink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.links[i]
}

// --- harness ---

type harness struct {
	session *Session
	peer    *channel.PipeEnd // the far side of the room channel
	signals chan types.SignalData
	factory *fakeFactory
	mic     *MockMicrophone
}

func startSession(t *testing.T, role Role, mic *MockMicrophone, opts ...func(*Config, *Deps)) *harness {
	t.Helper()
	local, peer := channel.NewPipe()
	t.Cleanup(func() {
		local.Close()
		peer.Close()
	})

	h := &harness{
		peer:    peer,
		signals: make(chan types.SignalData, 32),
		factory: &fakeFactory{},
		mic:     mic,
	}
	peer.On(types.EventSignal, func(data json.RawMessage) {
		var sig types.Signal
		if err := json.Unmarshal(data, &sig); err == nil {
			h.signals <- sig.Data
		}
	})

	cfg := Config{RoomCode: "Room1", Role: role, ConnectTimeout: time.Minute}
	deps := Deps{Channel: local, NewPeer: h.factory.New, Microphone: mic}
	for _, o := range opts {
		o(&cfg, &deps)
	}

	s, err := Start(context.Background(), cfg, deps)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	h.session = s
	return h
}

func (h *harness) send(t *testing.T, data types.SignalData) {
	t.Helper()
	require.NoError(t, h.peer.Emit(context.Background(), types.EventSignal, types.Signal{RoomCode: "room1", Data: data}))
}

func (h *harness) recv(t *testing.T) types.SignalData {
	t.Helper()
	select {
	case d := <-h.signals:
		return d
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for signal")
		return types.SignalData{}
	}
}

func (h *harness) recvNone(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case d := <-h.signals:
		t.Fatalf("expected no signal, got %+v", d)
	case <-time.After(within):
	}
}

// settle lets in-flight pipe deliveries land, then reads the view.
func (h *harness) settle() View {
	time.Sleep(20 * time.Millisecond)
	return h.session.View()
}

func offer(sdp string) *webrtc.SessionDescription {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
}

func answer(sdp string) *webrtc.SessionDescription {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}
}

func candidate(c string) *webrtc.ICECandidateInit {
	return &webrtc.ICECandidateInit{Candidate: c}
}
