package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/videocall/internal/domain"
)

var (
	ErrSessionNotFound = errors.New("call session not found")
	ErrSessionExists   = errors.New("call session already exists")
)

// InMemorySessionRepository keeps sessions for the lifetime of the process.
// It stores copies, so callers never share a record with the store.
type InMemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]domain.CallSession
}

func NewInMemorySessionRepository() *InMemorySessionRepository {
	return &InMemorySessionRepository{
		sessions: make(map[uuid.UUID]domain.CallSession),
	}
}

func (r *InMemorySessionRepository) Create(ctx context.Context, session *domain.CallSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if session == nil {
		return errors.New("session is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.ID]; ok {
		return ErrSessionExists
	}

	r.sessions[session.ID] = clone(session)
	return nil
}

func (r *InMemorySessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.CallSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	out := clone(&session)
	return &out, nil
}

func (r *InMemorySessionRepository) Update(ctx context.Context, session *domain.CallSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if session == nil {
		return errors.New("session is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.ID]; !ok {
		return ErrSessionNotFound
	}

	r.sessions[session.ID] = clone(session)
	return nil
}

func (r *InMemorySessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return ErrSessionNotFound
	}

	delete(r.sessions, id)
	return nil
}

// List returns all sessions, oldest first.
func (r *InMemorySessionRepository) List(ctx context.Context) ([]*domain.CallSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.CallSession, 0, len(r.sessions))
	for _, session := range r.sessions {
		out := clone(&session)
		result = append(result, &out)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func clone(s *domain.CallSession) domain.CallSession {
	out := *s
	if s.ClosedAt != nil {
		at := *s.ClosedAt
		out.ClosedAt = &at
	}
	return out
}
