package grok

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Laisky/zap"

	"github.com/fuchsia74/grok2api/common/config"
	"github.com/fuchsia74/grok2api/common/logger"
	"github.com/fuchsia74/grok2api/model"
	"github.com/fuchsia74/grok2api/relay/catalog"
	relaymodel "github.com/fuchsia74/grok2api/relay/model"
)

const (
	thinkingOpenMarker  = "<think>\n"
	thinkingCloseMarker = "\n</think>\n"
)

// Translator turns one OpenAI-shaped conversation into the generic event
// stream, branching to the image and video pipelines for non-text models.
type Translator struct {
	client   *Client
	resolver *catalog.Resolver
}

func NewTranslator(client *Client, resolver *catalog.Resolver) *Translator {
	return &Translator{client: client, resolver: resolver}
}

// StreamParams carries one translation request.
type StreamParams struct {
	Messages     []relaymodel.Message
	ModelId      string
	ShowThinking bool
	// ImageCount applies to image models only; zero means one image.
	ImageCount int
}

// CatalogSyncOptions builds the configured remote catalog sync parameters.
func CatalogSyncOptions() catalog.SyncOptions {
	return catalog.SyncOptions{
		APIKey:  config.CatalogAPIKey,
		BaseURL: config.CatalogBaseURL,
		TTL:     config.CatalogTTL,
	}
}

// Stream resolves the model and produces the event stream for one request.
// The returned channel is closed when the stream ends; consuming it to the
// end never blocks on upstream state once a terminal event was emitted.
func (t *Translator) Stream(ctx context.Context, credential *model.Credential, params StreamParams) <-chan relaymodel.StreamEvent {
	out := make(chan relaymodel.StreamEvent, 16)
	go func() {
		defer close(out)
		emit := func(ev relaymodel.StreamEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		resolved, ok := t.resolver.ResolveWithSync(ctx, params.ModelId, "", CatalogSyncOptions())
		if !ok {
			emit(relaymodel.ErrorEvent(ModelNotFoundError(params.ModelId)))
			return
		}
		desc := resolved.Descriptor

		switch desc.Kind {
		case catalog.KindImage:
			t.streamImage(ctx, credential, desc, params, emit)
		case catalog.KindVideo:
			t.streamVideo(ctx, credential, desc, params, emit)
		default:
			t.streamText(ctx, credential, desc, params, emit)
		}
	}()
	return out
}

// chatRequest is the upstream chat payload. Everything beyond model and
// message is fixed to the product's web client defaults.
type chatRequest struct {
	Temporary             bool           `json:"temporary"`
	ModelName             string         `json:"modelName"`
	ModelMode             string         `json:"modelMode,omitempty"`
	Message               string         `json:"message"`
	FileAttachments       []string       `json:"fileAttachments"`
	ImageAttachments      []string       `json:"imageAttachments"`
	DisableSearch         bool           `json:"disableSearch"`
	EnableImageGeneration bool           `json:"enableImageGeneration"`
	ReturnImageBytes      bool           `json:"returnImageBytes"`
	EnableImageStreaming  bool           `json:"enableImageStreaming"`
	ImageGenerationCount  int            `json:"imageGenerationCount"`
	ForceConcise          bool           `json:"forceConcise"`
	ToolOverrides         map[string]any `json:"toolOverrides"`
}

// chatLine is one NDJSON line of the streamed chat response.
type chatLine struct {
	Result struct {
		Response struct {
			ResponseId    string `json:"responseId"`
			Token         string `json:"token"`
			IsThinking    bool   `json:"isThinking"`
			ModelResponse *struct {
				Message string `json:"message"`
			} `json:"modelResponse"`
		} `json:"response"`
	} `json:"result"`
}

func (t *Translator) streamText(ctx context.Context, credential *model.Credential, desc catalog.Descriptor, params StreamParams, emit func(relaymodel.StreamEvent) bool) {
	payload := chatRequest{
		Temporary:             true,
		ModelName:             desc.UpstreamName,
		ModelMode:             desc.UpstreamMode,
		Message:               flattenConversation(params.Messages),
		FileAttachments:       []string{},
		ImageAttachments:      []string{},
		EnableImageGeneration: true,
		EnableImageStreaming:  true,
		ImageGenerationCount:  2,
		ToolOverrides:         map[string]any{},
	}

	body, err := t.client.postStream(ctx, credential, chatPath, payload)
	if err != nil {
		emit(relaymodel.ErrorEvent(err))
		return
	}
	defer body.Close()

	var (
		responseId string
		thinking   bool
		// Once the thinking segment closes it never reopens within one
		// response; trailing thinking tokens are dropped.
		thinkingClosed bool
	)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var parsed chatLine
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			logger.Logger.Debug("skipping malformed chat line", zap.Error(err))
			continue
		}
		resp := parsed.Result.Response
		if responseId == "" && resp.ResponseId != "" {
			responseId = resp.ResponseId
		}
		if resp.Token == "" {
			continue
		}

		if resp.IsThinking {
			if thinkingClosed || !params.ShowThinking {
				continue
			}
			if !thinking {
				thinking = true
				if !emit(relaymodel.TokenEvent(thinkingOpenMarker)) {
					return
				}
			}
			if !emit(relaymodel.TokenEvent(resp.Token)) {
				return
			}
			continue
		}

		if thinking {
			thinking = false
			thinkingClosed = true
			if !emit(relaymodel.TokenEvent(thinkingCloseMarker)) {
				return
			}
		}
		if !emit(relaymodel.TokenEvent(resp.Token)) {
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		emit(relaymodel.ErrorEvent(TransportError(err)))
		return
	}
	if thinking && params.ShowThinking {
		emit(relaymodel.TokenEvent(thinkingCloseMarker))
	}
	emit(relaymodel.DoneEvent(responseId))
}

func (t *Translator) streamImage(ctx context.Context, credential *model.Credential, desc catalog.Descriptor, params StreamParams, emit func(relaymodel.StreamEvent) bool) {
	prompt := flattenPrompt(params.Messages)
	count := params.ImageCount
	if count <= 0 {
		count = 1
	}

	for ev := range t.client.GenerateImages(ctx, credential, prompt, count, desc.AspectRatio, credential.NsfwEnabled) {
		switch ev.Type {
		case relaymodel.EventProgress:
			if !emit(relaymodel.TokenEvent(fmt.Sprintf("Generating image %d/%d...\n", ev.Progress, ev.Total))) {
				return
			}
		case relaymodel.EventImage:
			// The image event itself must reach the coordinator so partial
			// progress survives a credential switch; the markdown narration
			// is for the chat client.
			if !emit(ev) {
				return
			}
			if !emit(relaymodel.TokenEvent(fmt.Sprintf("![image](%s)\n\n", ImageDisplayURL(ev.Image)))) {
				return
			}
		case relaymodel.EventError:
			// Rate limiting passes through verbatim so the coordinator can
			// rotate credentials; everything else is narrated first.
			if !errorIndicatesRateLimit(ev) {
				emit(relaymodel.TokenEvent("Image generation failed: " + ev.Message + "\n"))
			}
			emit(ev)
			return
		case relaymodel.EventDone:
			emit(ev)
			return
		}
	}
}

func (t *Translator) streamVideo(ctx context.Context, credential *model.Credential, desc catalog.Descriptor, params StreamParams, emit func(relaymodel.StreamEvent) bool) {
	prompt := flattenPrompt(params.Messages)
	if !emit(relaymodel.TokenEvent("Generating reference image...\n")) {
		return
	}

	var seed *relaymodel.GeneratedImage
	for ev := range t.client.GenerateImages(ctx, credential, prompt, 1, defaultSeedImageRatio(desc), credential.NsfwEnabled) {
		switch ev.Type {
		case relaymodel.EventImage:
			if seed == nil {
				seed = ev.Image
			}
		case relaymodel.EventError:
			if !errorIndicatesRateLimit(ev) {
				emit(relaymodel.TokenEvent("Reference image failed: " + ev.Message + "\n"))
			}
			emit(ev)
			return
		}
	}
	if seed == nil || seed.URL == "" {
		emit(relaymodel.ErrorEvent(IncompleteResultError("no reference image produced")))
		return
	}

	postId, ok := ExtractPostId(seed.URL)
	if !ok {
		emit(relaymodel.ErrorEvent(IncompleteResultError("reference image url carries no post id: " + seed.URL)))
		return
	}
	if !emit(relaymodel.TokenEvent("Animating...\n")) {
		return
	}

	lastProgress := -1
	for ev := range t.client.GenerateVideo(ctx, credential, VideoParams{
		ImageURL:    seed.URL,
		Prompt:      prompt,
		PostId:      postId,
		AspectRatio: desc.AspectRatio,
	}) {
		switch ev.Type {
		case relaymodel.EventProgress:
			if ev.Progress != lastProgress {
				lastProgress = ev.Progress
				if !emit(relaymodel.TokenEvent(fmt.Sprintf("Progress: %d%%\n", ev.Progress))) {
					return
				}
			}
		case relaymodel.EventComplete:
			if ev.Video != nil {
				if !emit(relaymodel.TokenEvent(fmt.Sprintf("[video](%s)\n", ev.Video.URL))) {
					return
				}
			}
			if !emit(ev) {
				return
			}
		case relaymodel.EventError:
			emit(ev)
			return
		case relaymodel.EventDone:
			emit(ev)
			return
		}
	}
}

func defaultSeedImageRatio(desc catalog.Descriptor) string {
	if desc.AspectRatio != "" {
		return desc.AspectRatio
	}
	return "16:9"
}

func errorIndicatesRateLimit(ev relaymodel.StreamEvent) bool {
	if KindOf(ev.Err) == ErrKindRateLimited {
		return true
	}
	lower := strings.ToLower(ev.Message)
	return strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests")
}

// flattenConversation folds the whole turn list into the single message body
// the upstream expects. Non-user turns keep a role prefix so the model can
// tell instructions from user input.
func flattenConversation(messages []relaymodel.Message) string {
	var b strings.Builder
	for _, m := range messages {
		content := strings.TrimSpace(m.StringContent())
		if content == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if m.Role == "user" {
			b.WriteString(content)
		} else {
			b.WriteString(m.Role)
			b.WriteString(": ")
			b.WriteString(content)
		}
	}
	return b.String()
}

// flattenPrompt reduces a conversation to the generation prompt: the latest
// non-empty user turn, falling back to the whole flattened conversation.
func flattenPrompt(messages []relaymodel.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != "user" {
			continue
		}
		if content := strings.TrimSpace(messages[i].StringContent()); content != "" {
			return content
		}
	}
	return flattenConversation(messages)
}
