package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/immxrtalbeast/videocall/internal/domain"
)

const (
	// ActionJoin takes room, identity, a token placeholder and a client id.
	ActionJoin = "join"
	// ActionCancel abandons the join attempt that is still requesting a token.
	ActionCancel = "cancel"

	joinArgCount = 4
)

// Callback receives the asynchronous result of a bridge action. Exactly one
// of its methods is called, at most once.
type Callback interface {
	Success(payload map[string]any)
	Error(kind domain.ErrorKind, message string)
}

// CallbackFuncs adapts two functions to Callback.
type CallbackFuncs struct {
	OnSuccess func(payload map[string]any)
	OnError   func(kind domain.ErrorKind, message string)
}

func (c CallbackFuncs) Success(payload map[string]any) {
	if c.OnSuccess != nil {
		c.OnSuccess(payload)
	}
}

func (c CallbackFuncs) Error(kind domain.ErrorKind, message string) {
	if c.OnError != nil {
		c.OnError(kind, message)
	}
}

// Bridge adapts actions from the embedded web layer to the join service.
type Bridge struct {
	joins Joiner
	log   *slog.Logger
}

func NewBridge(joins Joiner, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{joins: joins, log: log}
}

// Execute dispatches action. Failures detected up front (unknown action, bad
// arguments, a join already in progress) are returned and cb is not called.
// Otherwise cb receives the outcome later and the returned attempt id can be
// used to cancel it.
func (b *Bridge) Execute(ctx context.Context, action string, args []string, cb Callback) (uint64, error) {
	const op = "service.bridge.execute"
	log := b.log.With(slog.String("op", op), slog.String("action", action))

	switch strings.TrimSpace(action) {
	case ActionJoin:
		return b.join(ctx, args, cb)
	case ActionCancel:
		cancelled := b.joins.Cancel(0)
		log.Info("cancel requested", slog.Bool("cancelled", cancelled))
		cb.Success(map[string]any{"cancelled": cancelled})
		return 0, nil
	default:
		log.Warn("unsupported bridge action")
		return 0, domain.NewError(domain.KindUnsupported, fmt.Sprintf("unsupported action %q", action))
	}
}

// Cancel abandons attempt, typically because the web layer went away.
func (b *Bridge) Cancel(attempt uint64) bool {
	return b.joins.Cancel(attempt)
}

func (b *Bridge) join(ctx context.Context, args []string, cb Callback) (uint64, error) {
	if len(args) != joinArgCount {
		return 0, domain.NewError(domain.KindInvalidArgument,
			fmt.Sprintf("join expects %d arguments (room, identity, token, clientId), got %d", joinArgCount, len(args)))
	}
	// args[2] is a token placeholder from the web layer; the real token comes
	// from the handshake.
	req := domain.NewJoinRequest(args[0], args[1], args[3])

	return b.joins.Join(ctx, req, func(out JoinOutcome) {
		if out.Err != nil {
			cb.Error(domain.KindOf(out.Err), domain.MessageOf(out.Err))
			return
		}
		cb.Success(map[string]any{
			"screen_id": out.ScreenID.String(),
			"room":      out.Params.Room,
			"identity":  out.Params.Identity,
			"client_id": out.Params.ClientID,
		})
	})
}
