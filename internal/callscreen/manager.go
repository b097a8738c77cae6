package callscreen

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/immxrtalbeast/videocall/internal/domain"
	"github.com/immxrtalbeast/videocall/internal/repository"
	"github.com/immxrtalbeast/videocall/internal/tile"
	"github.com/immxrtalbeast/videocall/lib/logger/sl"
)

var ErrNoActiveScreen = errors.New("no active call screen")

// Manager launches call screens. Only one screen is active at a time; a new
// launch closes the previous one.
type Manager struct {
	sessions repository.SessionRepository
	opts     Options
	log      *slog.Logger

	mu     sync.RWMutex
	active *Screen
}

func NewManager(sessions repository.SessionRepository, opts Options, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		sessions: sessions,
		opts:     opts.withDefaults(),
		log:      log,
	}
}

// Launch opens a call screen for params with the local participant's tile
// already on it.
func (m *Manager) Launch(ctx context.Context, params domain.StartParams) (uuid.UUID, error) {
	const op = "callscreen.manager.launch"
	log := m.log.With(
		slog.String("op", op),
		slog.String("room", params.Room),
		slog.String("client_id", params.ClientID),
	)

	if err := params.Validate(); err != nil {
		return uuid.Nil, err
	}

	local, err := tile.NewConfig(params.Identity).Local(true).Mirror(true).Build()
	if err != nil {
		return uuid.Nil, err
	}

	session := domain.NewCallSession(params)
	if err := m.sessions.Create(ctx, session); err != nil {
		log.Error("failed to record session", sl.Err(err))
		return uuid.Nil, domain.WrapError(domain.KindInternal, "record call session", err)
	}

	screen := newScreen(session.ID, params, m.opts, m.log)
	if err := screen.Dispatch(ctx, Join(local)); err != nil {
		screen.Close()
		m.markClosed(ctx, session.ID)
		log.Error("failed to place local participant", sl.Err(err))
		return uuid.Nil, domain.WrapError(domain.KindInternal, "place local participant", err)
	}

	m.mu.Lock()
	prev := m.active
	m.active = screen
	m.mu.Unlock()

	if prev != nil {
		log.Info("replacing active call screen", slog.String("previous", prev.ID().String()))
		m.closeScreen(ctx, prev)
	}

	log.Info("call screen launched", slog.String("screen_id", session.ID.String()))
	return session.ID, nil
}

// Active returns the screen currently on display.
func (m *Manager) Active() (*Screen, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return nil, ErrNoActiveScreen
	}
	return m.active, nil
}

// Screen returns the live screen with id. A known but closed screen yields
// ErrScreenClosed.
func (m *Manager) Screen(ctx context.Context, id uuid.UUID) (*Screen, error) {
	m.mu.RLock()
	active := m.active
	m.mu.RUnlock()
	if active != nil && active.ID() == id {
		return active, nil
	}

	if _, err := m.sessions.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrScreenClosed
}

// Session returns the record of a launched screen, live or closed.
func (m *Manager) Session(ctx context.Context, id uuid.UUID) (*domain.CallSession, error) {
	return m.sessions.GetByID(ctx, id)
}

func (m *Manager) Sessions(ctx context.Context) ([]*domain.CallSession, error) {
	return m.sessions.List(ctx)
}

// Close closes the screen with id if it is the active one.
func (m *Manager) Close(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	screen := m.active
	if screen == nil || screen.ID() != id {
		m.mu.Unlock()
		if _, err := m.sessions.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrScreenClosed
	}
	m.active = nil
	m.mu.Unlock()

	m.closeScreen(ctx, screen)
	return nil
}

// Shutdown closes the active screen, if any.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	screen := m.active
	m.active = nil
	m.mu.Unlock()

	if screen != nil {
		m.closeScreen(ctx, screen)
	}
}

func (m *Manager) closeScreen(ctx context.Context, screen *Screen) {
	screen.Close()
	m.markClosed(ctx, screen.ID())
}

func (m *Manager) markClosed(ctx context.Context, id uuid.UUID) {
	session, err := m.sessions.GetByID(ctx, id)
	if err != nil {
		m.log.Warn("closing unknown session", slog.String("screen_id", id.String()), sl.Err(err))
		return
	}
	session.Close(time.Now())
	if err := m.sessions.Update(ctx, session); err != nil {
		m.log.Error("failed to mark session closed", slog.String("screen_id", id.String()), sl.Err(err))
	}
}
