package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/videocall/internal/domain"
	"github.com/immxrtalbeast/videocall/lib/logger/sl"
)

// JoinState is the state of the single join attempt the service tracks.
type JoinState int

const (
	JoinIdle JoinState = iota
	JoinRequesting
	JoinLaunching
	JoinFailed
)

func (s JoinState) String() string {
	switch s {
	case JoinIdle:
		return "idle"
	case JoinRequesting:
		return "requesting"
	case JoinLaunching:
		return "launching"
	case JoinFailed:
		return "failed"
	default:
		return fmt.Sprintf("JoinState(%d)", int(s))
	}
}

// JoinOutcome is reported once per attempt that was not cancelled.
type JoinOutcome struct {
	Attempt  uint64
	Request  domain.JoinRequest
	Params   domain.StartParams
	ScreenID uuid.UUID
	Err      error
}

// JoinService drives one join attempt at a time: it resolves a token and
// launches the call screen with it. All state lives behind mu; handshake
// completions re-enter under mu and are dropped unless their attempt is
// still the current one.
type JoinService struct {
	tokens   TokenRequester
	launcher ScreenLauncher
	log      *slog.Logger

	mu      sync.Mutex
	state   JoinState
	attempt uint64
	cancel  context.CancelFunc
}

func NewJoinService(tokens TokenRequester, launcher ScreenLauncher, log *slog.Logger) *JoinService {
	if log == nil {
		log = slog.Default()
	}
	return &JoinService{
		tokens:   tokens,
		launcher: launcher,
		log:      log,
	}
}

func (s *JoinService) State() JoinState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Join starts an attempt and returns its id. Invalid requests fail with
// KindInvalidArgument and a request arriving while another attempt is
// requesting or launching fails with KindBusy; neither changes state.
// report is called at most once, from another goroutine, and never for a
// cancelled attempt. Cancelling ctx abandons the attempt.
func (s *JoinService) Join(ctx context.Context, req domain.JoinRequest, report func(JoinOutcome)) (uint64, error) {
	const op = "service.join.join"
	log := s.log.With(
		slog.String("op", op),
		slog.String("room", req.Room),
		slog.String("client_id", req.ClientID),
	)

	if err := req.Validate(); err != nil {
		log.Info("rejecting invalid join request", sl.Err(err))
		return 0, err
	}
	if report == nil {
		report = func(JoinOutcome) {}
	}

	s.mu.Lock()
	if s.state == JoinRequesting || s.state == JoinLaunching {
		state := s.state
		s.mu.Unlock()
		log.Info("join already in progress", slog.String("state", state.String()))
		return 0, domain.NewError(domain.KindBusy, "join already in progress")
	}
	s.attempt++
	attempt := s.attempt
	attemptCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = JoinRequesting
	s.mu.Unlock()

	log.Info("join requested", slog.Uint64("attempt", attempt))
	go s.run(attemptCtx, cancel, attempt, req, report)

	return attempt, nil
}

// Cancel abandons attempt while its handshake is still outstanding; pass 0
// for whatever attempt is current. Once the token is in hand the launch is
// committed and Cancel reports false.
func (s *JoinService) Cancel(attempt uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if attempt != 0 && attempt != s.attempt {
		return false
	}
	if s.state != JoinRequesting {
		return false
	}
	s.log.Info("join cancelled", slog.Uint64("attempt", s.attempt))
	// Bumping the generation makes the late handshake result stale.
	s.attempt++
	s.cancel()
	s.cancel = nil
	s.state = JoinIdle
	return true
}

func (s *JoinService) run(ctx context.Context, cancel context.CancelFunc, attempt uint64, req domain.JoinRequest, report func(JoinOutcome)) {
	const op = "service.join.run"
	defer cancel()
	log := s.log.With(
		slog.String("op", op),
		slog.Uint64("attempt", attempt),
		slog.String("room", req.Room),
	)

	tok, err := s.tokens.RequestToken(ctx, req.Room, req.Identity)

	s.mu.Lock()
	if attempt != s.attempt || s.state != JoinRequesting {
		s.mu.Unlock()
		log.Debug("dropping handshake result of abandoned attempt")
		return
	}
	// An abandoned caller wins over a handshake that settled at the same time.
	if ctx.Err() != nil {
		s.attempt++
		s.state = JoinIdle
		s.cancel = nil
		s.mu.Unlock()
		log.Info("join abandoned by caller")
		return
	}
	if err != nil {
		s.state = JoinFailed
		s.cancel = nil
		s.mu.Unlock()

		log.Warn("token handshake failed", slog.String("kind", string(domain.KindOf(err))), sl.Err(err))
		report(JoinOutcome{Attempt: attempt, Request: req, Err: err})
		s.settle(attempt)
		return
	}

	s.state = JoinLaunching
	s.cancel = nil
	s.mu.Unlock()

	params := domain.StartParams{
		Room:     req.Room,
		Identity: req.Identity,
		Token:    tok.Value,
		ClientID: req.ClientID,
	}
	screenID, err := s.launcher.Launch(context.WithoutCancel(ctx), params)
	if err != nil {
		if domain.KindOf(err) == domain.KindInternal {
			err = domain.WrapError(domain.KindInternal, "launch call screen", err)
		}
		s.mu.Lock()
		s.state = JoinFailed
		s.mu.Unlock()

		log.Error("call screen launch failed", sl.Err(err))
		report(JoinOutcome{Attempt: attempt, Request: req, Params: params, Err: err})
		s.settle(attempt)
		return
	}

	s.mu.Lock()
	s.state = JoinIdle
	s.mu.Unlock()

	log.Info("call screen launched", slog.String("screen_id", screenID.String()))
	report(JoinOutcome{Attempt: attempt, Request: req, Params: params, ScreenID: screenID})
}

// settle returns a failed attempt to idle unless a newer attempt has taken
// over in the meantime.
func (s *JoinService) settle(attempt uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempt == attempt && s.state == JoinFailed {
		s.state = JoinIdle
	}
}
