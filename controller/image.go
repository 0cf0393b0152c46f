package controller

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok2api/common/ctxkey"
	"github.com/fuchsia74/grok2api/common/helper"
	"github.com/fuchsia74/grok2api/model"
	"github.com/fuchsia74/grok2api/monitor"
	"github.com/fuchsia74/grok2api/relay/catalog"
	"github.com/fuchsia74/grok2api/relay/grok"
	relaymodel "github.com/fuchsia74/grok2api/relay/model"
)

// sizeRatios maps the OpenAI size parameter onto the fixed aspect ratios the
// imagine pipeline accepts.
var sizeRatios = map[string]string{
	"1024x1024": "1:1",
	"1792x1024": "16:9",
	"1024x1792": "9:16",
	"1024x768":  "4:3",
	"768x1024":  "3:4",
}

// ImagesGenerations serves /v1/images/generations by driving the image
// pipeline directly, without chat narration.
func ImagesGenerations(c *gin.Context) {
	var req relaymodel.ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondBadRequest(c, "prompt is required")
		return
	}
	if req.Model == "" {
		req.Model = "grok-image"
	}
	if req.N <= 0 {
		req.N = 1
	}
	resolved, ok := modelResolver.ResolveWithSync(c.Request.Context(), req.Model, catalog.KindImage, grok.CatalogSyncOptions())
	if !ok {
		respondError(c, grok.ModelNotFoundError(req.Model))
		return
	}
	aspectRatio := resolved.Descriptor.AspectRatio
	if ratio, ok := sizeRatios[strings.ToLower(strings.TrimSpace(req.Size))]; ok {
		aspectRatio = ratio
	}

	attempt := func(ctx context.Context, credential *model.Credential, collected int) <-chan relaymodel.StreamEvent {
		remaining := req.N - collected
		if remaining < 1 {
			remaining = 1
		}
		return grokClient.GenerateImages(ctx, credential, req.Prompt, remaining, aspectRatio, credential.NsfwEnabled)
	}

	var images []*relaymodel.GeneratedImage
	for ev := range coordinator.Run(c.Request.Context(), c.GetString(ctxkey.SpecificCredentialId), attempt) {
		switch ev.Type {
		case relaymodel.EventImage:
			images = append(images, ev.Image)
		case relaymodel.EventError:
			monitor.RecordRequest("images_generations", "error")
			respondError(c, eventError(ev))
			return
		}
	}
	if len(images) == 0 {
		monitor.RecordRequest("images_generations", "error")
		respondError(c, grok.IncompleteResultError("no images collected"))
		return
	}

	data := make([]relaymodel.ImageData, 0, len(images))
	for _, img := range images {
		if req.ResponseFormat == "b64_json" && len(img.Payload) > 0 {
			data = append(data, relaymodel.ImageData{B64Json: base64.StdEncoding.EncodeToString(img.Payload)})
			continue
		}
		data = append(data, relaymodel.ImageData{URL: grok.ImageDisplayURL(img)})
	}
	monitor.RecordRequest("images_generations", "ok")
	c.JSON(http.StatusOK, relaymodel.ImageResponse{
		Created: helper.GetTimestamp(),
		Data:    data,
	})
}
