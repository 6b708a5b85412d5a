package voice

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ALCHACAS2/Dots-Boxes/pkg/types"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRoleFor_FirstPlayerInitiates(t *testing.T) {
	players := []types.Player{{Name: "Alice"}, {Name: "Bob"}}
	assert.Equal(t, RoleInitiator, RoleFor(players, "Alice"))
	assert.Equal(t, RoleResponder, RoleFor(players, "Bob"))
	assert.Equal(t, RoleResponder, RoleFor(nil, "Alice"))
}

func TestClassifyMediaError(t *testing.T) {
	assert.Nil(t, ClassifyMediaError(nil))

	wrapped := fmt.Errorf("open device: %w", ErrDeviceBusy)
	me := ClassifyMediaError(wrapped)
	assert.Equal(t, MediaBusy, me.Kind)
	assert.ErrorIs(t, me, ErrDeviceBusy)
	assert.Same(t, me, ClassifyMediaError(me), "already classified errors pass through")
}

func TestStart_RequiresDeps(t *testing.T) {
	_, err := Start(context.Background(), Config{Role: RoleInitiator}, Deps{})
	assert.Error(t, err)
}

func TestInitiator_SendsOfferOnStart(t *testing.T) {
	h := startSession(t, RoleInitiator, &MockMicrophone{})

	sig := h.recv(t)
	require.NotNil(t, sig.Offer)
	assert.Nil(t, sig.Answer)
	assert.Nil(t, sig.Candidate)
	assert.Equal(t, "offer-1", sig.Offer.SDP)

	v := h.session.View()
	assert.Equal(t, PhaseConnecting, v.Phase)
	assert.True(t, v.Connecting)
	assert.Equal(t, "have-local-offer", v.Signaling)
	assert.False(t, v.HasLocalTrack, "initiator does not capture before the user asks")
	assert.Equal(t, "offer", v.LocalDescription)

	st := h.factory.link(0).snapshot()
	require.Len(t, st.local, 1)
	assert.Equal(t, webrtc.SDPTypeOffer, st.local[0].Type)
}

func TestInitiator_AppliesAnswerThenCandidates(t *testing.T) {
	h := startSession(t, RoleInitiator, &MockMicrophone{})
	h.recv(t) // offer

	h.send(t, types.SignalData{Candidate: candidate("early")})
	h.send(t, types.SignalData{Answer: answer("remote-answer")})
	h.send(t, types.SignalData{Candidate: candidate("late")})

	require.Eventually(t, func() bool {
		return len(h.factory.link(0).snapshot().candidates) == 1
	}, time.Second, 10*time.Millisecond)

	st := h.factory.link(0).snapshot()
	assert.Equal(t, "late", st.candidates[0].Candidate)
	require.Len(t, st.remote, 1)
	assert.Equal(t, "remote-answer", st.remote[0].SDP)
	assert.Equal(t, "negotiated", h.session.View().Signaling)
}

func TestInitiator_DropsOfferAndDuplicateAnswer(t *testing.T) {
	h := startSession(t, RoleInitiator, &MockMicrophone{})
	h.recv(t)

	h.send(t, types.SignalData{Offer: offer("glare")})
	h.send(t, types.SignalData{Answer: answer("a1")})
	h.send(t, types.SignalData{Answer: answer("a2")})
	h.settle()

	st := h.factory.link(0).snapshot()
	require.Len(t, st.remote, 1)
	assert.Equal(t, "a1", st.remote[0].SDP)
	assert.Equal(t, 1, h.factory.count())
	h.recvNone(t, 50*time.Millisecond)
}

func TestResponder_DropsEarlyCandidateThenAnswersOffer(t *testing.T) {
	track := &fakeTrack{}
	mic := &MockMicrophone{}
	mic.On("Acquire", mock.Anything).Return(track, nil).Once()
	h := startSession(t, RoleResponder, mic)

	h.send(t, types.SignalData{Candidate: candidate("before-offer")})
	v := h.settle()
	assert.Equal(t, "stable", v.Signaling)
	assert.Empty(t, h.factory.link(0).snapshot().candidates)

	h.send(t, types.SignalData{Offer: offer("remote-offer")})
	sig := h.recv(t)
	require.NotNil(t, sig.Answer)
	assert.Equal(t, "answer-1", sig.Answer.SDP)

	st := h.factory.link(0).snapshot()
	require.Len(t, st.attached, 1)
	assert.Same(t, track, st.attached[0])
	assert.False(t, track.Enabled(), "captured but not transmitting")
	require.Len(t, st.remote, 1)
	assert.Equal(t, "remote-offer", st.remote[0].SDP)

	h.send(t, types.SignalData{Candidate: candidate("after-offer")})
	require.Eventually(t, func() bool {
		return len(h.factory.link(0).snapshot().candidates) == 1
	}, time.Second, 10*time.Millisecond)

	v = h.session.View()
	assert.True(t, v.HasLocalTrack)
	assert.False(t, v.MicEnabled)
	assert.Equal(t, "answer", v.LocalDescription)
	mic.AssertExpectations(t)
}

func TestResponder_AnswersWithoutMicrophone(t *testing.T) {
	mic := &MockMicrophone{}
	mic.On("Acquire", mock.Anything).Return(nil, ErrPermissionDenied).Once()
	h := startSession(t, RoleResponder, mic)

	h.send(t, types.SignalData{Offer: offer("o")})
	sig := h.recv(t)
	require.NotNil(t, sig.Answer)
	assert.Empty(t, h.factory.link(0).snapshot().attached)
	assert.False(t, h.session.View().HasLocalTrack)
}

func TestResponder_DropsAnswer(t *testing.T) {
	h := startSession(t, RoleResponder, &MockMicrophone{})

	h.send(t, types.SignalData{Answer: answer("stray")})
	h.settle()
	assert.Empty(t, h.factory.link(0).snapshot().remote)
}

func TestResponder_SecondOfferRestartsOnFreshLink(t *testing.T) {
	mic := &MockMicrophone{}
	track := &fakeTrack{}
	mic.On("Acquire", mock.Anything).Return(track, nil).Once()
	h := startSession(t, RoleResponder, mic)

	h.send(t, types.SignalData{Offer: offer("first")})
	h.recv(t)
	h.send(t, types.SignalData{Offer: offer("second")})
	sig := h.recv(t)

	require.NotNil(t, sig.Answer)
	assert.Equal(t, "answer-2", sig.Answer.SDP)
	assert.Equal(t, 2, h.factory.count())
	assert.True(t, h.factory.link(0).snapshot().closed)

	fresh := h.factory.link(1).snapshot()
	require.Len(t, fresh.attached, 1, "existing track moves to the new link")
	assert.Same(t, track, fresh.attached[0])
	mic.AssertNumberOfCalls(t, "Acquire", 1)
}

func TestSignal_RequiresExactlyOnePayload(t *testing.T) {
	h := startSession(t, RoleResponder, &MockMicrophone{})

	h.send(t, types.SignalData{})
	h.send(t, types.SignalData{Offer: offer("o"), Candidate: candidate("c")})
	v := h.settle()

	assert.Equal(t, "stable", v.Signaling)
	assert.Empty(t, h.factory.link(0).snapshot().remote)
	h.recvNone(t, 50*time.Millisecond)
}

func TestBrokenLink_IsReplacedAndInitiatorOffersAgain(t *testing.T) {
	h := startSession(t, RoleInitiator, &MockMicrophone{})
	h.recv(t)

	h.factory.link(0).breakRemote()

	h.send(t, types.SignalData{Answer: answer("bad")})
	sig := h.recv(t)

	require.NotNil(t, sig.Offer)
	assert.Equal(t, "offer-2", sig.Offer.SDP)
	assert.True(t, h.factory.link(0).snapshot().closed)
	assert.Equal(t, PhaseConnecting, h.session.View().Phase)
}

func TestConnectTimeout_UnblocksWithoutChangingPhase(t *testing.T) {
	h := startSession(t, RoleInitiator, &MockMicrophone{}, func(c *Config, _ *Deps) {
		c.ConnectTimeout = 50 * time.Millisecond
	})
	h.recv(t)

	require.Eventually(t, func() bool {
		return !h.session.View().Connecting
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, PhaseConnecting, h.session.View().Phase)
}

func TestPeerState_ConnectedUnblocks(t *testing.T) {
	h := startSession(t, RoleInitiator, &MockMicrophone{})
	h.recv(t)

	h.factory.link(0).events.OnStateChange(PhaseConnected)
	v := h.settle()
	assert.Equal(t, PhaseConnected, v.Phase)
	assert.False(t, v.Connecting)
}

func TestReconnect_OnlyFromFailedOrDisconnected(t *testing.T) {
	h := startSession(t, RoleInitiator, &MockMicrophone{})
	h.recv(t)

	assert.ErrorIs(t, h.session.Reconnect(), ErrReconnectNotAllowed)

	old := h.factory.link(0)
	old.events.OnStateChange(PhaseFailed)
	require.Eventually(t, func() bool {
		return h.session.View().Phase == PhaseFailed
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, h.session.Reconnect())
	sig := h.recv(t)
	require.NotNil(t, sig.Offer)
	assert.Equal(t, "offer-2", sig.Offer.SDP)
	assert.True(t, old.snapshot().closed)

	// Events from the discarded link are ignored.
	old.events.OnStateChange(PhaseConnected)
	old.events.OnCandidate(webrtc.ICECandidateInit{Candidate: "stale"})
	v := h.settle()
	assert.Equal(t, PhaseConnecting, v.Phase)
	assert.True(t, v.Connecting)
	h.recvNone(t, 50*time.Millisecond)
}

func TestLocalCandidates_AreStreamedIndividually(t *testing.T) {
	h := startSession(t, RoleInitiator, &MockMicrophone{})
	h.recv(t)

	l := h.factory.link(0)
	l.events.OnCandidate(webrtc.ICECandidateInit{Candidate: "c1"})
	l.events.OnCandidate(webrtc.ICECandidateInit{Candidate: "c2"})

	first, second := h.recv(t), h.recv(t)
	require.NotNil(t, first.Candidate)
	require.NotNil(t, second.Candidate)
	assert.Equal(t, "c1", first.Candidate.Candidate)
	assert.Equal(t, "c2", second.Candidate.Candidate)
}

func TestForceEnableControls_LeavesConnecting(t *testing.T) {
	h := startSession(t, RoleInitiator, &MockMicrophone{})
	h.recv(t)

	h.session.ForceEnableControls()
	v := h.session.View()
	assert.False(t, v.Connecting)
	assert.Equal(t, PhaseDisconnected, v.Phase)
	assert.NoError(t, h.session.Reconnect())
}

func TestToggleMic_AcquiresOnceThenFlips(t *testing.T) {
	track := &fakeTrack{}
	mic := &MockMicrophone{}
	mic.On("Acquire", mock.Anything).Return(track, nil).Once()
	h := startSession(t, RoleInitiator, mic)
	h.recv(t)

	ctx := context.Background()
	require.NoError(t, h.session.ToggleMic(ctx))
	assert.True(t, track.Enabled())
	assert.True(t, h.session.View().MicEnabled)
	require.Len(t, h.factory.link(0).snapshot().attached, 1)

	require.NoError(t, h.session.ToggleMic(ctx))
	assert.False(t, track.Enabled())
	assert.False(t, h.session.View().MicEnabled)

	require.NoError(t, h.session.ToggleMic(ctx))
	assert.True(t, track.Enabled())

	mic.AssertNumberOfCalls(t, "Acquire", 1)
	assert.Len(t, h.factory.link(0).snapshot().attached, 1, "no reattach, no renegotiation")
	assert.Equal(t, 1, h.factory.count())
	h.recvNone(t, 50*time.Millisecond)
}

func TestToggleMic_CategorizesFailures(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind MediaErrorKind
	}{
		{"denied", ErrPermissionDenied, MediaDenied},
		{"absent", ErrDeviceNotFound, MediaNotFound},
		{"busy", ErrDeviceBusy, MediaBusy},
		{"other", errors.New("driver exploded"), MediaOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mic := &MockMicrophone{}
			mic.On("Acquire", mock.Anything).Return(nil, tc.err)
			h := startSession(t, RoleInitiator, mic)
			h.recv(t)

			err := h.session.ToggleMic(context.Background())
			var me *MediaError
			require.ErrorAs(t, err, &me)
			assert.Equal(t, tc.kind, me.Kind)
			assert.NotEmpty(t, me.Message())

			v := h.session.View()
			assert.False(t, v.MicEnabled)
			assert.Equal(t, PhaseConnecting, v.Phase)
		})
	}
}

func TestToggleAudio_IsLocalOnly(t *testing.T) {
	out := &MockOutput{}
	out.On("SetMuted", true).Once()
	out.On("SetMuted", false).Once()
	h := startSession(t, RoleInitiator, &MockMicrophone{}, func(_ *Config, d *Deps) { d.Output = out })
	h.recv(t)

	h.session.ToggleAudio()
	assert.False(t, h.session.View().AudioEnabled)
	h.session.ToggleAudio()
	assert.True(t, h.session.View().AudioEnabled)

	out.AssertExpectations(t)
	h.recvNone(t, 50*time.Millisecond)
	assert.Empty(t, h.factory.link(0).snapshot().attached)
}

func TestClose_ReleasesEverything(t *testing.T) {
	track := &fakeTrack{}
	mic := &MockMicrophone{}
	mic.On("Acquire", mock.Anything).Return(track, nil).Once()
	h := startSession(t, RoleInitiator, mic)
	h.recv(t)
	require.NoError(t, h.session.ToggleMic(context.Background()))

	require.NoError(t, h.session.Close())

	assert.True(t, track.stopped.Load())
	assert.True(t, h.factory.link(0).snapshot().closed)
	assert.ErrorIs(t, h.session.ToggleMic(context.Background()), ErrClosed)
	assert.ErrorIs(t, h.session.Reconnect(), ErrClosed)

	v := h.session.View()
	assert.Equal(t, PhaseNew, v.Phase)
	assert.False(t, v.MicEnabled)
	assert.Empty(t, v.LocalDescription)

	// Signals after close go nowhere.
	h.send(t, types.SignalData{Offer: offer("late")})
	h.recvNone(t, 50*time.Millisecond)
}

func TestOnChange_ReportsTransitions(t *testing.T) {
	views := make(chan View, 16)
	h := startSession(t, RoleInitiator, &MockMicrophone{}, func(_ *Config, d *Deps) {
		d.OnChange = func(v View) { views <- v }
	})
	h.recv(t)

	select {
	case v := <-views:
		assert.Equal(t, PhaseConnecting, v.Phase)
	case <-time.After(time.Second):
		t.Fatalf("no change reported")
	}
}
