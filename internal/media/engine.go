// Package media negotiates receive-only WebRTC peer connections and feeds
// their video tracks into a call screen.
package media

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"

	"github.com/immxrtalbeast/videocall/internal/domain"
	"github.com/immxrtalbeast/videocall/internal/track"
	"github.com/immxrtalbeast/videocall/lib/logger/sl"
)

const DefaultGatherTimeout = 5 * time.Second

// Target receives the video sources of negotiated connections. A connection
// is closed once Done is closed.
type Target interface {
	AttachSource(identity string, src track.Source) error
	Done() <-chan struct{}
}

type Engine struct {
	api           *webrtc.API
	config        webrtc.Configuration
	gatherTimeout time.Duration
	log           *slog.Logger

	mu    sync.Mutex
	peers map[uuid.UUID]*webrtc.PeerConnection
}

func NewEngine(stunServers []string, gatherTimeout time.Duration, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	if gatherTimeout <= 0 {
		gatherTimeout = DefaultGatherTimeout
	}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	config := webrtc.Configuration{}
	if len(stunServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}

	return &Engine{
		api:           webrtc.NewAPI(webrtc.WithMediaEngine(m)),
		config:        config,
		gatherTimeout: gatherTimeout,
		log:           log,
		peers:         make(map[uuid.UUID]*webrtc.PeerConnection),
	}, nil
}

// Answer accepts a remote offer and returns the local answer with all ICE
// candidates gathered. Video tracks of the connection are attached to
// target under identity, or under the track's stream id when identity is
// empty. Audio is ignored.
func (e *Engine) Answer(ctx context.Context, target Target, identity string, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	const op = "media.engine.answer"
	id := uuid.New()
	log := e.log.With(
		slog.String("op", op),
		slog.String("peer_id", id.String()),
		slog.String("identity", identity),
	)

	if offer.Type != webrtc.SDPTypeOffer || offer.SDP == "" {
		return nil, domain.NewError(domain.KindInvalidArgument, "an SDP offer is required")
	}

	pc, err := e.api.NewPeerConnection(e.config)
	if err != nil {
		log.Error("failed to create peer connection", sl.Err(err))
		return nil, domain.WrapError(domain.KindInternal, "create peer connection", err)
	}

	closed := make(chan struct{})
	var closeOnce sync.Once
	closePeer := func() {
		closeOnce.Do(func() {
			close(closed)
			e.mu.Lock()
			delete(e.peers, id)
			e.mu.Unlock()
			if err := pc.Close(); err != nil {
				log.Debug("closing peer connection", sl.Err(err))
			}
		})
	}

	pc.OnTrack(func(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeVideo {
			return
		}
		name := identity
		if name == "" {
			name = remote.StreamID()
		}
		log.Info("video track received",
			slog.String("participant", name),
			slog.String("codec", remote.Codec().MimeType),
		)

		if err := target.AttachSource(name, track.FromRemote(remote)); err != nil {
			log.Warn("cannot attach video track", sl.Err(err))
			go closePeer()
			return
		}

		// Ask for a keyframe so the tile has something to show right away.
		if err := pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(remote.SSRC())}}); err != nil {
			log.Debug("failed to request keyframe", sl.Err(err))
		}
		go func() {
			for {
				if _, _, err := receiver.ReadRTCP(); err != nil {
					return
				}
			}
		}()
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debug("peer connection state", slog.String("state", state.String()))
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			go closePeer()
		}
	})

	e.mu.Lock()
	e.peers[id] = pc
	e.mu.Unlock()

	go func() {
		select {
		case <-target.Done():
			closePeer()
		case <-closed:
		}
	}()

	if err := pc.SetRemoteDescription(offer); err != nil {
		closePeer()
		log.Info("rejecting offer", sl.Err(err))
		return nil, domain.WrapError(domain.KindInvalidArgument, "invalid SDP offer", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		closePeer()
		return nil, domain.WrapError(domain.KindInternal, "create answer", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		closePeer()
		return nil, domain.WrapError(domain.KindInternal, "set local description", err)
	}

	select {
	case <-gatherComplete:
	case <-time.After(e.gatherTimeout):
		log.Warn("ICE gathering timed out, answering with partial candidates")
	case <-ctx.Done():
		closePeer()
		return nil, ctx.Err()
	}

	log.Info("answer created")
	return pc.LocalDescription(), nil
}

// Peers is the number of open connections.
func (e *Engine) Peers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.peers)
}

// Close closes every open connection.
func (e *Engine) Close() {
	e.mu.Lock()
	peers := make([]*webrtc.PeerConnection, 0, len(e.peers))
	for id, pc := range e.peers {
		peers = append(peers, pc)
		delete(e.peers, id)
	}
	e.mu.Unlock()

	for _, pc := range peers {
		if err := pc.Close(); err != nil {
			e.log.Debug("closing peer connection", sl.Err(err))
		}
	}
}
