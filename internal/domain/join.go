package domain

import (
	"strings"

	"github.com/google/uuid"
)

// JoinRequest is received once per user action from the bridge and consumed
// exactly once by the join orchestrator.
type JoinRequest struct {
	Room     string
	Identity string
	ClientID string
}

func NewJoinRequest(room, identity, clientID string) JoinRequest {
	req := JoinRequest{
		Room:     strings.TrimSpace(room),
		Identity: strings.TrimSpace(identity),
		ClientID: strings.TrimSpace(clientID),
	}
	if req.ClientID == "" {
		req.ClientID = uuid.New().String()
	}
	return req
}

func (r JoinRequest) TokenRequest() TokenRequest {
	return TokenRequest{Room: r.Room, Identity: r.Identity}
}

func (r JoinRequest) Validate() error {
	return r.TokenRequest().Validate()
}

// StartParams are handed to the call-screen launcher once a token is issued.
type StartParams struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
	Token    string `json:"token"`
	ClientID string `json:"client_id"`
}

func (p StartParams) Validate() error {
	if p.Room == "" || p.Identity == "" {
		return NewError(KindInvalidArgument, "room and identity are required")
	}
	if p.Token == "" {
		return NewError(KindInvalidArgument, "token is required")
	}
	return nil
}
