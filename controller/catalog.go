package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok2api/relay/catalog"
	"github.com/fuchsia74/grok2api/relay/grok"
)

// SyncCatalogModels serves POST /api/catalog/sync, forcing a refresh of the
// remote model listing regardless of TTL.
func SyncCatalogModels(c *gin.Context) {
	opts := grok.CatalogSyncOptions()
	opts.Force = true
	result := modelResolver.SyncCatalog(c.Request.Context(), opts)
	status := http.StatusOK
	if !result.OK {
		status = http.StatusBadGateway
	}
	c.JSON(status, result)
}

// ListCatalogModels serves GET /api/catalog, the admin view over the merged
// catalog including unusable remote ids when requested.
func ListCatalogModels(c *gin.Context) {
	entries := modelResolver.ListCatalog(catalog.ListOptions{
		Kind:            catalog.ModelKind(c.Query("kind")),
		Query:           c.Query("q"),
		IncludeUnusable: c.Query("include_unusable") == "true",
	})
	c.JSON(http.StatusOK, gin.H{"success": true, "data": entries})
}
