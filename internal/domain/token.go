package domain

import (
	"strings"
	"time"
)

// TokenRequest asks the token endpoint for an access token to a room.
type TokenRequest struct {
	Room     string
	Identity string
}

func NewTokenRequest(room, identity string) TokenRequest {
	return TokenRequest{
		Room:     strings.TrimSpace(room),
		Identity: strings.TrimSpace(identity),
	}
}

// Validate fails with KindInvalidArgument when room or identity is empty.
func (r TokenRequest) Validate() error {
	if r.Room == "" {
		return NewError(KindInvalidArgument, "room is required")
	}
	if r.Identity == "" {
		return NewError(KindInvalidArgument, "identity is required")
	}
	return nil
}

// Key identifies the request for single-flight deduplication.
func (r TokenRequest) Key() string {
	return r.Room + "\x00" + r.Identity
}

// Token is a short-lived credential for joining a room.
type Token struct {
	Value     string
	ExpiresAt *time.Time
}

// Expired reports whether the token is known to be expired at now.
func (t Token) Expired(now time.Time) bool {
	if t.ExpiresAt == nil {
		return false
	}
	return !now.Before(*t.ExpiresAt)
}
