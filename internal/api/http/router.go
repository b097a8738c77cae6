package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/videocall/internal/token"
)

func SetupRouter(allowOrigins []string, bridgeController *BridgeController, screenController *ScreenController, tokenController *TokenController) *gin.Engine {
	router := gin.Default()
	config := cors.DefaultConfig()
	if len(allowOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowOrigins
		config.AllowCredentials = true
	}
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	router.Use(cors.New(config))
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	if tokenController != nil {
		router.POST(token.DefaultPath, tokenController.GetToken)
	}

	if bridgeController != nil {
		api.POST("/bridge/exec", bridgeController.Execute)
	}

	if screenController != nil {
		screens := api.Group("/screens")
		screens.GET("", screenController.ListScreens)
		screens.GET("/active", screenController.GetActive)
		screens.GET("/:screenID", screenController.GetScreen)
		screens.DELETE("/:screenID", screenController.CloseScreen)
		screens.POST("/:screenID/participants", screenController.AddParticipant)
		screens.PATCH("/:screenID/participants/:identity", screenController.UpdateParticipant)
		screens.DELETE("/:screenID/participants/:identity", screenController.RemoveParticipant)
		screens.POST("/:screenID/offer", screenController.Offer)
		screens.GET("/:screenID/ws", screenController.Stream)
	}

	return router
}
