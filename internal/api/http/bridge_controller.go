package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/videocall/internal/domain"
	"github.com/immxrtalbeast/videocall/internal/service"
)

const defaultJoinTimeout = 30 * time.Second

type BridgeController struct {
	bridge  service.BridgeExecutor
	timeout time.Duration
	log     *slog.Logger
}

func NewBridgeController(bridge service.BridgeExecutor, timeout time.Duration, log *slog.Logger) *BridgeController {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultJoinTimeout
	}
	return &BridgeController{bridge: bridge, timeout: timeout, log: log}
}

type bridgeResult struct {
	payload map[string]any
	kind    domain.ErrorKind
	message string
}

// Execute runs a bridge action and answers with its outcome. If the caller
// goes away first, a pending join is cancelled.
func (c *BridgeController) Execute(ctx *gin.Context) {
	const op = "api.http.bridge.execute"
	type request struct {
		Action string   `json:"action" binding:"required"`
		Args   []string `json:"args"`
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request body: "+err.Error())
		return
	}

	results := make(chan bridgeResult, 1)
	cb := service.CallbackFuncs{
		OnSuccess: func(payload map[string]any) {
			results <- bridgeResult{payload: payload}
		},
		OnError: func(kind domain.ErrorKind, message string) {
			results <- bridgeResult{kind: kind, message: message}
		},
	}

	reqCtx := ctx.Request.Context()
	attempt, err := c.bridge.Execute(reqCtx, req.Action, req.Args, cb)
	if err != nil {
		writeError(ctx, err)
		return
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-results:
		if res.kind != "" {
			ctx.JSON(statusForKind(res.kind), gin.H{"error": res.kind, "message": res.message})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"result": res.payload})
	case <-reqCtx.Done():
		c.bridge.Cancel(attempt)
		c.log.Info("bridge caller went away", slog.String("op", op), slog.Uint64("attempt", attempt))
	case <-timer.C:
		cancelled := c.bridge.Cancel(attempt)
		c.log.Warn("bridge action timed out",
			slog.String("op", op),
			slog.Uint64("attempt", attempt),
			slog.Bool("cancelled", cancelled),
		)
		ctx.JSON(http.StatusGatewayTimeout, gin.H{
			"error":   domain.KindTransportFailure,
			"message": "join did not settle in time",
		})
	}
}
