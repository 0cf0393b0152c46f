// Package router declares the HTTP surface: the OpenAI-shaped relay routes,
// the admin API and the media proxy.
package router

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetRouter(server *gin.Engine) {
	server.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type", "X-Credential-Id", "X-Request-Id"},
	}))
	setRelayRouter(server)
	setApiRouter(server)
}
