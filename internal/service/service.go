package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/immxrtalbeast/videocall/internal/callscreen"
	"github.com/immxrtalbeast/videocall/internal/domain"
	"github.com/immxrtalbeast/videocall/internal/media"
)

// TokenRequester resolves an access token for a room and identity.
type TokenRequester interface {
	RequestToken(ctx context.Context, room, identity string) (domain.Token, error)
}

// TokenIssuer signs access tokens locally.
type TokenIssuer interface {
	Issue(room, identity string) (domain.Token, error)
}

// ScreenLauncher starts the call screen. It must return once the screen is
// handed off; the screen's own lifecycle is not awaited.
type ScreenLauncher interface {
	Launch(ctx context.Context, params domain.StartParams) (uuid.UUID, error)
}

// Joiner is the join orchestrator as seen by the bridge.
type Joiner interface {
	Join(ctx context.Context, req domain.JoinRequest, report func(JoinOutcome)) (uint64, error)
	Cancel(attempt uint64) bool
	State() JoinState
}

// BridgeExecutor is the bridge as seen by the web layer.
type BridgeExecutor interface {
	Execute(ctx context.Context, action string, args []string, cb Callback) (uint64, error)
	Cancel(attempt uint64) bool
}

// ScreenDirectory looks up launched call screens.
type ScreenDirectory interface {
	Active() (*callscreen.Screen, error)
	Screen(ctx context.Context, id uuid.UUID) (*callscreen.Screen, error)
	Session(ctx context.Context, id uuid.UUID) (*domain.CallSession, error)
	Sessions(ctx context.Context) ([]*domain.CallSession, error)
	Close(ctx context.Context, id uuid.UUID) error
}

// MediaNegotiator answers WebRTC offers for a call screen.
type MediaNegotiator interface {
	Answer(ctx context.Context, target media.Target, identity string, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error)
}
