package router

import (
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok2api/controller"
	"github.com/fuchsia74/grok2api/middleware"
)

func setApiRouter(server *gin.Engine) {
	api := server.Group("/api")
	api.GET("/status", controller.Status)

	admin := api.Group("")
	admin.Use(middleware.AdminAuth())
	{
		admin.GET("/credential", controller.ListCredentials)
		admin.POST("/credential/import", controller.ImportCredentials)
		admin.DELETE("/credential", controller.ClearCredentials)
		admin.DELETE("/credential/:id", controller.DeleteCredential)
		admin.POST("/credential/:id/nsfw", controller.SetCredentialNsfw)
		admin.POST("/credential/:id/status", controller.SetCredentialStatus)
		admin.GET("/credential/stats", controller.CredentialStats)

		admin.GET("/catalog", controller.ListCatalogModels)
		admin.POST("/catalog/sync", controller.SyncCatalogModels)
	}
}
