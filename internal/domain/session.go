package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallSession records one launched call screen. The live screen itself is
// held by the call-screen manager; the session outlives it for lookups.
type CallSession struct {
	ID        uuid.UUID  `json:"id"`
	Room      string     `json:"room"`
	Identity  string     `json:"identity"`
	ClientID  string     `json:"client_id"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// NewCallSession starts a session for params. The token itself is not kept.
func NewCallSession(params StartParams) *CallSession {
	return &CallSession{
		ID:        uuid.New(),
		Room:      params.Room,
		Identity:  params.Identity,
		ClientID:  params.ClientID,
		CreatedAt: time.Now().UTC(),
	}
}

// IsActive reports whether the session's screen has not been closed yet.
func (s *CallSession) IsActive() bool {
	return s != nil && s.ClosedAt == nil
}

func (s *CallSession) Close(at time.Time) {
	if s.ClosedAt != nil {
		return
	}
	at = at.UTC()
	s.ClosedAt = &at
}
