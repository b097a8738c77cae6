package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/videocall/internal/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, session *domain.CallSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.CallSession, error)
	Update(ctx context.Context, session *domain.CallSession) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*domain.CallSession, error)
}
