package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/videocall/internal/service"
)

// TokenController serves the development token endpoint in the shape the
// token client expects.
type TokenController struct {
	issuer service.TokenIssuer
}

func NewTokenController(issuer service.TokenIssuer) *TokenController {
	return &TokenController{issuer: issuer}
}

func (c *TokenController) GetToken(ctx *gin.Context) {
	token, err := c.issuer.Issue(ctx.PostForm("roomName"), ctx.PostForm("identity"))
	if err != nil {
		writeError(ctx, err)
		return
	}

	resp := gin.H{"token": token.Value}
	if token.ExpiresAt != nil {
		resp["expiresAt"] = token.ExpiresAt.UTC().Format(time.RFC3339)
	}
	ctx.JSON(http.StatusOK, resp)
}
