package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/videocall/internal/callscreen"
	"github.com/immxrtalbeast/videocall/internal/domain"
	"github.com/immxrtalbeast/videocall/internal/repository"
)

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	case domain.KindTransportFailure:
		return http.StatusBadGateway
	case domain.KindRejected:
		return http.StatusForbidden
	case domain.KindBusy:
		return http.StatusConflict
	case domain.KindUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse maps err to a status and the {"error", "message"} body.
func errorResponse(err error) (int, gin.H) {
	switch {
	case errors.Is(err, callscreen.ErrNoActiveScreen),
		errors.Is(err, callscreen.ErrParticipantNotFound),
		errors.Is(err, repository.ErrSessionNotFound):
		return http.StatusNotFound, gin.H{"error": "NotFound", "message": err.Error()}
	case errors.Is(err, callscreen.ErrParticipantExists):
		return http.StatusConflict, gin.H{"error": "Conflict", "message": err.Error()}
	case errors.Is(err, callscreen.ErrScreenClosed):
		return http.StatusGone, gin.H{"error": "Gone", "message": err.Error()}
	}
	kind := domain.KindOf(err)
	return statusForKind(kind), gin.H{"error": kind, "message": domain.MessageOf(err)}
}

func writeError(ctx *gin.Context, err error) {
	ctx.JSON(errorResponse(err))
}

func badRequest(ctx *gin.Context, message string) {
	ctx.JSON(http.StatusBadRequest, gin.H{"error": domain.KindInvalidArgument, "message": message})
}
