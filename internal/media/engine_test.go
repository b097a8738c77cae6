package media

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immxrtalbeast/videocall/internal/domain"
	"github.com/immxrtalbeast/videocall/internal/track"
)

type fakeTarget struct {
	mu       sync.Mutex
	attached []string
	done     chan struct{}
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{done: make(chan struct{})}
}

func (f *fakeTarget) AttachSource(identity string, _ track.Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached = append(f.attached, identity)
	return nil
}

func (f *fakeTarget) Done() <-chan struct{} {
	return f.done
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(nil, time.Second, nil)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

// newOffer builds a real offer with one outgoing video transceiver.
func newOffer(t *testing.T) (*webrtc.PeerConnection, webrtc.SessionDescription) {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendonly,
	})
	require.NoError(t, err)

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	gather := webrtc.GatheringCompletePromise(pc)
	require.NoError(t, pc.SetLocalDescription(offer))
	<-gather

	return pc, *pc.LocalDescription()
}

func TestAnswerRejectsMissingOffer(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name string
		desc webrtc.SessionDescription
	}{
		{"empty", webrtc.SessionDescription{}},
		{"answer type", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}},
		{"garbage sdp", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "not an sdp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Answer(context.Background(), newFakeTarget(), "bob", tt.desc)

			require.Error(t, err)
			assert.Equal(t, domain.KindInvalidArgument, domain.KindOf(err))
		})
	}
	assert.Zero(t, e.Peers())
}

func TestAnswerNegotiatesReceiveOnlyConnection(t *testing.T) {
	e := newTestEngine(t)
	offerer, offer := newOffer(t)
	target := newFakeTarget()

	answer, err := e.Answer(context.Background(), target, "bob", offer)

	require.NoError(t, err)
	require.NotNil(t, answer)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	assert.Contains(t, answer.SDP, "a=recvonly")
	require.NoError(t, offerer.SetRemoteDescription(*answer))
	assert.Equal(t, 1, e.Peers())

	close(target.done)
	require.Eventually(t, func() bool { return e.Peers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
