package controller

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok2api/common/config"
	"github.com/fuchsia74/grok2api/common/ctxkey"
	"github.com/fuchsia74/grok2api/common/helper"
	"github.com/fuchsia74/grok2api/common/random"
	"github.com/fuchsia74/grok2api/common/render"
	"github.com/fuchsia74/grok2api/model"
	"github.com/fuchsia74/grok2api/monitor"
	"github.com/fuchsia74/grok2api/relay/grok"
	relaymodel "github.com/fuchsia74/grok2api/relay/model"
)

// ChatCompletions serves /v1/chat/completions in both streaming and
// buffered form, with credential rotation handled by the coordinator.
func ChatCompletions(c *gin.Context) {
	var req relaymodel.GeneralOpenAIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		respondBadRequest(c, "model is required")
		return
	}
	if len(req.Messages) == 0 {
		respondBadRequest(c, "messages must not be empty")
		return
	}
	imageCount := req.N
	if imageCount <= 0 {
		imageCount = 1
	}
	attempt := func(ctx context.Context, credential *model.Credential, collected int) <-chan relaymodel.StreamEvent {
		remaining := imageCount - collected
		if remaining < 1 {
			remaining = 1
		}
		return translator.Stream(ctx, credential, grok.StreamParams{
			Messages:     req.Messages,
			ModelId:      req.Model,
			ShowThinking: config.ShowThinking,
			ImageCount:   remaining,
		})
	}

	events := coordinator.Run(c.Request.Context(), c.GetString(ctxkey.SpecificCredentialId), attempt)
	if req.Stream {
		streamChatResponse(c, req.Model, events)
	} else {
		bufferChatResponse(c, req.Model, events)
	}
}

func streamChatResponse(c *gin.Context, modelId string, events <-chan relaymodel.StreamEvent) {
	setEventStreamHeaders(c)
	id := "chatcmpl-" + random.GetUUID()
	created := helper.GetTimestamp()
	sentAny := false

	chunk := func(content string, finishReason *string) {
		var choices []relaymodel.ChatCompletionsStreamResponseChoice
		delta := relaymodel.StreamDelta{Content: content}
		if !sentAny {
			delta.Role = "assistant"
			sentAny = true
		}
		choices = append(choices, relaymodel.ChatCompletionsStreamResponseChoice{
			Delta:        delta,
			FinishReason: finishReason,
		})
		_ = render.ObjectData(c, relaymodel.ChatCompletionsStreamResponse{
			Id:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   modelId,
			Choices: choices,
		})
	}

	for ev := range events {
		switch ev.Type {
		case relaymodel.EventToken:
			chunk(ev.Token, nil)
		case relaymodel.EventInfo:
			chunk("\n> "+ev.Message+"\n", nil)
		case relaymodel.EventError:
			monitor.RecordRequest("chat_completions", "error")
			failure := eventError(ev)
			_ = render.ObjectData(c, gin.H{"error": relaymodel.Error{
				Message: ev.Message,
				Type:    string(grok.KindOf(failure)),
				Code:    grok.StatusCode(failure),
			}})
			render.Done(c)
			return
		case relaymodel.EventDone:
			stop := "stop"
			chunk("", &stop)
			render.Done(c)
			monitor.RecordRequest("chat_completions", "ok")
			return
		}
	}
	// Upstream closed without a terminal event; end the stream cleanly.
	render.Done(c)
}

func bufferChatResponse(c *gin.Context, modelId string, events <-chan relaymodel.StreamEvent) {
	var content strings.Builder
	for ev := range events {
		switch ev.Type {
		case relaymodel.EventToken:
			content.WriteString(ev.Token)
		case relaymodel.EventError:
			monitor.RecordRequest("chat_completions", "error")
			respondError(c, eventError(ev))
			return
		case relaymodel.EventDone:
			monitor.RecordRequest("chat_completions", "ok")
			c.JSON(http.StatusOK, relaymodel.TextResponse{
				Id:      "chatcmpl-" + random.GetUUID(),
				Object:  "chat.completion",
				Created: helper.GetTimestamp(),
				Model:   modelId,
				Choices: []relaymodel.TextResponseChoice{{
					Message:      relaymodel.Message{Role: "assistant", Content: content.String()},
					FinishReason: "stop",
				}},
			})
			return
		}
	}
	respondError(c, grok.IncompleteResultError("stream ended without completion"))
}
