package router

import (
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok2api/controller"
	"github.com/fuchsia74/grok2api/middleware"
)

func setRelayRouter(server *gin.Engine) {
	v1 := server.Group("/v1")
	v1.Use(middleware.TokenAuth(), middleware.CredentialBinding())
	{
		v1.POST("/chat/completions", controller.ChatCompletions)
		v1.POST("/images/generations", controller.ImagesGenerations)
		v1.GET("/models", controller.ListModels)
		v1.GET("/models/:model", controller.RetrieveModel)
	}

	// Media fetch-through. Unauthenticated: the URLs only circulate inside
	// responses already gated by TokenAuth, and targets are host-allowlisted.
	proxy := server.Group("/proxy")
	{
		proxy.GET("/video", controller.ProxyVideo)
		proxy.GET("/assets", controller.ProxyAssets)
	}
}
