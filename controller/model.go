package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok2api/common/helper"
	"github.com/fuchsia74/grok2api/relay/catalog"
	"github.com/fuchsia74/grok2api/relay/grok"
)

type openAIModel struct {
	Id      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type openAIModelList struct {
	Object string        `json:"object"`
	Data   []openAIModel `json:"data"`
}

// ListModels serves the OpenAI-shaped /v1/models listing backed by the
// merged builtin and remote catalog. Unusable remote ids are omitted.
func ListModels(c *gin.Context) {
	modelResolver.SyncCatalog(c.Request.Context(), grok.CatalogSyncOptions())

	entries := modelResolver.ListCatalog(catalog.ListOptions{})
	created := helper.GetTimestamp()
	data := make([]openAIModel, 0, len(entries))
	for _, entry := range entries {
		data = append(data, openAIModel{
			Id:      entry.Id,
			Object:  "model",
			Created: created,
			OwnedBy: "xai",
		})
	}
	c.JSON(http.StatusOK, openAIModelList{Object: "list", Data: data})
}

// RetrieveModel serves /v1/models/:model through the full resolution chain,
// so aliases and patterns answer the same way the chat path resolves them.
func RetrieveModel(c *gin.Context) {
	requested := c.Param("model")
	resolved, ok := modelResolver.ResolveWithSync(c.Request.Context(), requested, "", grok.CatalogSyncOptions())
	if !ok {
		respondError(c, grok.ModelNotFoundError(requested))
		return
	}
	c.JSON(http.StatusOK, openAIModel{
		Id:      resolved.Descriptor.Id,
		Object:  "model",
		Created: helper.GetTimestamp(),
		OwnedBy: "xai",
	})
}
