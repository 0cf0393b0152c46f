// Package controller holds the gin handlers for the OpenAI-shaped surface,
// the credential admin API and the media proxy.
package controller

import (
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/fuchsia74/grok2api/common/config"
	"github.com/fuchsia74/grok2api/common/helper"
	"github.com/fuchsia74/grok2api/relay/catalog"
	relaycontroller "github.com/fuchsia74/grok2api/relay/controller"
	"github.com/fuchsia74/grok2api/relay/grok"
	relaymodel "github.com/fuchsia74/grok2api/relay/model"
	"github.com/fuchsia74/grok2api/relay/pool"
)

var (
	credentialPool *pool.Pool
	grokClient     *grok.Client
	modelResolver  *catalog.Resolver
	translator     *grok.Translator
	coordinator    *relaycontroller.Coordinator
)

// Setup wires the handler package to its collaborators. Called once at boot.
func Setup(p *pool.Pool) {
	credentialPool = p
	grokClient = grok.NewClient()
	modelResolver = catalog.NewResolver(nil, nil)
	translator = grok.NewTranslator(grokClient, modelResolver)
	coordinator = relaycontroller.NewCoordinator(p, config.RetryTimes)
}

func setEventStreamHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Transfer-Encoding", "chunked")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
}

// respondError renders a terminal relay error in the OpenAI error shape.
func respondError(c *gin.Context, err error) {
	requestId := c.GetString(helper.RequestIdKey)
	c.JSON(grok.StatusCode(err), gin.H{
		"error": relaymodel.Error{
			Message: helper.MessageWithRequestId(err.Error(), requestId),
			Type:    string(grok.KindOf(err)),
			Code:    grok.StatusCode(err),
		},
	})
}

// eventError recovers the classified error behind a terminal error event.
func eventError(ev relaymodel.StreamEvent) error {
	if ev.Err != nil {
		return ev.Err
	}
	return errors.New(ev.Message)
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": relaymodel.Error{
			Message: message,
			Type:    "invalid_request_error",
			Code:    http.StatusBadRequest,
		},
	})
}
