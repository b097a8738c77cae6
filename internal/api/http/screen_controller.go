package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/videocall/internal/api/http/converter"
	"github.com/immxrtalbeast/videocall/internal/callscreen"
	"github.com/immxrtalbeast/videocall/internal/domain"
	"github.com/immxrtalbeast/videocall/internal/service"
	"github.com/immxrtalbeast/videocall/internal/tile"
	"github.com/immxrtalbeast/videocall/lib/logger/sl"
	"github.com/pion/webrtc/v3"
)

const writeWait = 10 * time.Second

type ScreenController struct {
	screens  service.ScreenDirectory
	media    service.MediaNegotiator
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewScreenController(screens service.ScreenDirectory, media service.MediaNegotiator, log *slog.Logger) *ScreenController {
	if log == nil {
		log = slog.Default()
	}
	return &ScreenController{
		screens: screens,
		media:   media,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (c *ScreenController) GetActive(ctx *gin.Context) {
	screen, err := c.screens.Active()
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"screen": converter.ScreenToApi(screen)})
}

func (c *ScreenController) ListScreens(ctx *gin.Context) {
	sessions, err := c.screens.Sessions(ctx.Request.Context())
	if err != nil {
		writeError(ctx, err)
		return
	}
	screens := make([]*converter.ScreenResponse, 0, len(sessions))
	for _, s := range sessions {
		screens = append(screens, converter.SessionToApi(s))
	}
	ctx.JSON(http.StatusOK, gin.H{"screens": screens})
}

func (c *ScreenController) GetScreen(ctx *gin.Context) {
	screenID, ok := parseScreenID(ctx)
	if !ok {
		return
	}

	screen, err := c.screens.Screen(ctx.Request.Context(), screenID)
	if err == nil {
		ctx.JSON(http.StatusOK, gin.H{"screen": converter.ScreenToApi(screen)})
		return
	}
	if !errors.Is(err, callscreen.ErrScreenClosed) {
		writeError(ctx, err)
		return
	}

	session, err := c.screens.Session(ctx.Request.Context(), screenID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"screen": converter.SessionToApi(session)})
}

func (c *ScreenController) CloseScreen(ctx *gin.Context) {
	screenID, ok := parseScreenID(ctx)
	if !ok {
		return
	}
	if err := c.screens.Close(ctx.Request.Context(), screenID); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *ScreenController) AddParticipant(ctx *gin.Context) {
	type request struct {
		Identity     string `json:"identity" binding:"required"`
		InitialState string `json:"initial_state"`
		Mirror       bool   `json:"mirror"`
		ScaleMode    string `json:"scale_mode"`
	}

	screen, ok := c.liveScreen(ctx)
	if !ok {
		return
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request body: "+err.Error())
		return
	}

	builder := tile.NewConfig(req.Identity).Mirror(req.Mirror)
	if req.InitialState != "" {
		builder.InitialStateName(req.InitialState)
	}
	if req.ScaleMode != "" {
		builder.ScaleModeName(req.ScaleMode)
	}
	cfg, err := builder.Build()
	if err != nil {
		writeError(ctx, err)
		return
	}

	if err := screen.Dispatch(ctx.Request.Context(), callscreen.Join(cfg)); err != nil {
		writeError(ctx, err)
		return
	}
	c.respondParticipant(ctx, screen, cfg.Identity, http.StatusCreated)
}

func (c *ScreenController) UpdateParticipant(ctx *gin.Context) {
	type request struct {
		Revision            uint64  `json:"revision"`
		HasVideoTrack       *bool   `json:"has_video_track"`
		Selected            *bool   `json:"selected"`
		SwitchedOff         *bool   `json:"switched_off"`
		Muted               *bool   `json:"muted"`
		Pinned              *bool   `json:"pinned"`
		Mirror              *bool   `json:"mirror"`
		ScaleMode           *string `json:"scale_mode"`
		NetworkQuality      *int    `json:"network_quality"`
		ClearNetworkQuality bool    `json:"clear_network_quality"`
	}

	screen, ok := c.liveScreen(ctx)
	if !ok {
		return
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request body: "+err.Error())
		return
	}

	patch := tile.Patch{
		HasVideoTrack:       req.HasVideoTrack,
		Selected:            req.Selected,
		SwitchedOff:         req.SwitchedOff,
		Muted:               req.Muted,
		Pinned:              req.Pinned,
		Mirror:              req.Mirror,
		ClearNetworkQuality: req.ClearNetworkQuality,
	}
	if req.ScaleMode != nil {
		mode, err := tile.ParseScaleMode(*req.ScaleMode)
		if err != nil {
			writeError(ctx, domain.WrapError(domain.KindInvalidArgument, "invalid scale_mode", err))
			return
		}
		patch.ScaleMode = &mode
	}
	if req.NetworkQuality != nil {
		level, err := tile.ParseNetworkQuality(*req.NetworkQuality)
		if err != nil {
			writeError(ctx, domain.WrapError(domain.KindInvalidArgument, "invalid network_quality", err))
			return
		}
		patch.NetworkQuality = &level
	}

	identity := ctx.Param("identity")
	update := tile.Update{Revision: req.Revision, Patch: patch}
	if err := screen.Dispatch(ctx.Request.Context(), callscreen.Change(identity, update)); err != nil {
		writeError(ctx, err)
		return
	}
	c.respondParticipant(ctx, screen, identity, http.StatusOK)
}

func (c *ScreenController) RemoveParticipant(ctx *gin.Context) {
	screen, ok := c.liveScreen(ctx)
	if !ok {
		return
	}
	if err := screen.Dispatch(ctx.Request.Context(), callscreen.Leave(ctx.Param("identity"))); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

// Offer negotiates the media connection that carries a participant's video
// into the screen.
func (c *ScreenController) Offer(ctx *gin.Context) {
	type request struct {
		Identity string                    `json:"identity"`
		SDP      webrtc.SessionDescription `json:"sdp"`
	}

	screen, ok := c.liveScreen(ctx)
	if !ok {
		return
	}

	var req request
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request body: "+err.Error())
		return
	}

	answer, err := c.media.Answer(ctx.Request.Context(), screen, req.Identity, req.SDP)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"answer": answer})
}

// Stream upgrades to a websocket that carries the screen's directive frames.
func (c *ScreenController) Stream(ctx *gin.Context) {
	screen, ok := c.liveScreen(ctx)
	if !ok {
		return
	}

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Warn("websocket upgrade failed", sl.Err(err))
		return
	}

	frames, unsubscribe := screen.Subscribe()
	log := c.log.With(slog.String("screen_id", screen.ID().String()))
	log.Info("directive stream opened")

	go forwardFrames(conn, frames, log)

	// The stream is one way; reading only notices when the client leaves.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	unsubscribe()
	conn.Close()
	log.Info("directive stream closed")
}

func forwardFrames(conn *websocket.Conn, frames <-chan callscreen.Frame, log *slog.Logger) {
	for frame := range frames {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(frame); err != nil {
			log.Debug("writing frame failed", sl.Err(err))
			return
		}
	}
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "screen closed"),
		time.Now().Add(writeWait),
	)
}

func (c *ScreenController) liveScreen(ctx *gin.Context) (*callscreen.Screen, bool) {
	screenID, ok := parseScreenID(ctx)
	if !ok {
		return nil, false
	}
	screen, err := c.screens.Screen(ctx.Request.Context(), screenID)
	if err != nil {
		writeError(ctx, err)
		return nil, false
	}
	return screen, true
}

func (c *ScreenController) respondParticipant(ctx *gin.Context, screen *callscreen.Screen, identity string, status int) {
	view, err := screen.Participant(identity)
	if err != nil {
		// Left again between dispatch and lookup.
		writeError(ctx, err)
		return
	}
	ctx.JSON(status, gin.H{"participant": converter.ParticipantToApi(view)})
}

func parseScreenID(ctx *gin.Context) (uuid.UUID, bool) {
	screenID, err := uuid.Parse(ctx.Param("screenID"))
	if err != nil {
		badRequest(ctx, "invalid screen id")
		return uuid.Nil, false
	}
	return screenID, true
}
