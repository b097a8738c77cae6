package converter

import (
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/videocall/internal/callscreen"
	"github.com/immxrtalbeast/videocall/internal/domain"
	"github.com/immxrtalbeast/videocall/internal/tile"
)

type ScreenResponse struct {
	ID           uuid.UUID             `json:"id"`
	Room         string                `json:"room"`
	Identity     string                `json:"identity"`
	ClientID     string                `json:"client_id"`
	Active       bool                  `json:"active"`
	Primary      string                `json:"primary,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	ClosedAt     *time.Time            `json:"closed_at,omitempty"`
	Participants []ParticipantResponse `json:"participants"`
}

type ParticipantResponse struct {
	Identity  string      `json:"identity"`
	Revision  uint64      `json:"revision"`
	State     tile.State  `json:"state"`
	Layout    tile.Layout `json:"layout"`
	Available bool        `json:"available"`
	Bound     bool        `json:"bound"`
	Frames    uint64      `json:"frames"`
	Primary   bool        `json:"primary"`
}

func ScreenToApi(s *callscreen.Screen) *ScreenResponse {
	views := s.Snapshot()
	participants := make([]ParticipantResponse, 0, len(views))
	var primary string
	for _, v := range views {
		participants = append(participants, ParticipantToApi(v))
		if v.Primary {
			primary = v.Identity
		}
	}

	return &ScreenResponse{
		ID:           s.ID(),
		Room:         s.Room(),
		Identity:     s.LocalIdentity(),
		ClientID:     s.ClientID(),
		Active:       true,
		Primary:      primary,
		CreatedAt:    s.CreatedAt(),
		Participants: participants,
	}
}

// SessionToApi describes a screen that is no longer live.
func SessionToApi(s *domain.CallSession) *ScreenResponse {
	return &ScreenResponse{
		ID:           s.ID,
		Room:         s.Room,
		Identity:     s.Identity,
		ClientID:     s.ClientID,
		Active:       s.IsActive(),
		CreatedAt:    s.CreatedAt,
		ClosedAt:     s.ClosedAt,
		Participants: []ParticipantResponse{},
	}
}

func ParticipantToApi(v callscreen.View) ParticipantResponse {
	return ParticipantResponse{
		Identity:  v.Identity,
		Revision:  v.Revision,
		State:     v.Layout.State,
		Layout:    v.Layout,
		Available: v.Available,
		Bound:     v.Bound,
		Frames:    v.Frames,
		Primary:   v.Primary,
	}
}
