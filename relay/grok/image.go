package grok

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/fuchsia74/grok2api/common/logger"
	"github.com/fuchsia74/grok2api/common/random"
	"github.com/fuchsia74/grok2api/model"
	relaymodel "github.com/fuchsia74/grok2api/relay/model"
)

const (
	// imagineBatchSize is the number of jobs the upstream settles per duplex
	// session. Observed behavior, not a documented contract; revisit if the
	// upstream changes its batching.
	imagineBatchSize = 6

	// imageCompleteSizeThreshold marks a payload as final once it exceeds
	// this many bytes.
	imageCompleteSizeThreshold = 50 * 1024

	// sessionSettleDelay catches trailing messages after the last job status
	// before the session resolves.
	sessionSettleDelay = 500 * time.Millisecond

	// interPageDelay spaces out continuation sessions.
	interPageDelay = time.Second

	// extraPageBudget pads the page budget beyond the minimum session count.
	extraPageBudget = 2
)

// defaultImageComplete decides whether an image payload is worth emitting.
// The upstream streams progressively larger previews without a definitive
// "final" flag, so this stays a heuristic: a false negative (emitting a
// non-final image) is tolerated, not a bug.
func defaultImageComplete(payloadSize int, url string) bool {
	if payloadSize > imageCompleteSizeThreshold {
		return true
	}
	lower := strings.ToLower(url)
	return strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg")
}

type imagineProperties struct {
	AspectRatio string `json:"aspect_ratio"`
	EnableNsfw  bool   `json:"enable_nsfw"`
	Source      string `json:"source"`
}

type imagineContentItem struct {
	RequestId  string            `json:"requestId"`
	Text       string            `json:"text"`
	Type       string            `json:"type"`
	Properties imagineProperties `json:"properties"`
}

type imagineItem struct {
	Content []imagineContentItem `json:"content"`
}

type imagineRequest struct {
	Type string      `json:"type"`
	Item imagineItem `json:"item"`
}

// imagineMessage is the inbound duplex message. Unknown tags are skipped so
// protocol additions never fail a session.
type imagineMessage struct {
	Type               string `json:"type"`
	JobId              string `json:"job_id"`
	RequestId          string `json:"request_id"`
	CurrentStatus      string `json:"current_status"`
	PercentageComplete int    `json:"percentage_complete"`
	Blob               string `json:"blob"`
	URL                string `json:"url"`
	Width              int    `json:"width"`
	Height             int    `json:"height"`
	Moderated          bool   `json:"moderated"`
	Message            string `json:"message"`
}

type imageJob struct {
	image       *relaymodel.GeneratedImage
	payloadSize int
	emitted     bool
}

// CollectImages runs one duplex session and returns the images that reached
// the completeness heuristic, in discovery order. The session resolves with
// partial results on timeout or clean close, and rejects on an upstream
// error message or a throttling close code.
func (c *Client) CollectImages(ctx context.Context, credential *model.Credential, prompt, aspectRatio string, nsfw, continuation bool, timeout time.Duration) ([]*relaymodel.GeneratedImage, error) {
	session, err := c.openSession(ctx, c.imagineURL, c.authHeaders(credential))
	if err != nil {
		var classified *Error
		if errors.As(err, &classified) {
			return nil, err
		}
		return nil, TransportError(err)
	}
	defer session.Close()

	inputType := "input_text"
	if continuation {
		inputType = "input_scroll"
	}
	request := imagineRequest{
		Type: "conversation.item.create",
		Item: imagineItem{Content: []imagineContentItem{{
			RequestId: random.GetUUID(),
			Text:      prompt,
			Type:      inputType,
			Properties: imagineProperties{
				AspectRatio: aspectRatio,
				EnableNsfw:  nsfw,
				Source:      "grok2api",
			},
		}}},
	}
	if err := session.SendJSON(request); err != nil {
		return nil, TransportError(err)
	}

	type readResult struct {
		data []byte
		err  error
	}
	// done releases the reader once collection resolves, otherwise a
	// timeout or settle return would leave it parked on the send.
	done := make(chan struct{})
	defer close(done)

	reads := make(chan readResult)
	go func() {
		defer close(reads)
		for {
			data, err := session.ReadMessage()
			select {
			case reads <- readResult{data: data, err: err}:
			case <-done:
				return
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	jobs := map[string]*imageJob{}
	var emitted []*relaymodel.GeneratedImage
	finished := 0
	var settle <-chan time.Time
	deadline := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return emitted, ctx.Err()
		case <-deadline:
			// Resolve with whatever was collected rather than hanging.
			return emitted, nil
		case <-settle:
			return emitted, nil
		case rr, ok := <-reads:
			if !ok {
				return emitted, nil
			}
			if rr.err != nil {
				if closeIndicatesRateLimit(rr.err) {
					return nil, RateLimitedError("imagine session closed by throttling")
				}
				if isNormalClose(rr.err) || ctx.Err() == nil {
					// Any other close resolves with partial results.
					return emitted, nil
				}
				return emitted, ctx.Err()
			}

			var msg imagineMessage
			if err := json.Unmarshal(rr.data, &msg); err != nil {
				// Malformed lines are skipped, never fatal.
				continue
			}
			switch msg.Type {
			case "error":
				if strings.Contains(strings.ToLower(msg.Message), "rate") {
					return nil, RateLimitedError(msg.Message)
				}
				return nil, newError(ErrKindUpstreamHTTP, "imagine session error: "+msg.Message)
			case "json", "status":
				if msg.CurrentStatus == "completed" || msg.CurrentStatus == "failed" {
					finished++
					if finished >= imagineBatchSize && settle == nil {
						settle = time.After(sessionSettleDelay)
					}
				}
			case "image":
				if msg.JobId == "" {
					continue
				}
				c.trackImage(jobs, &msg, &emitted)
			default:
				// Unknown tags are part of normal protocol drift.
			}
		}
	}
}

// trackImage keeps the largest payload seen per job and emits the job once,
// on first reaching the completeness heuristic. Moderated jobs never emit.
func (c *Client) trackImage(jobs map[string]*imageJob, msg *imagineMessage, emitted *[]*relaymodel.GeneratedImage) {
	payload, size := decodeImagePayload(msg.Blob)
	job, ok := jobs[msg.JobId]
	if !ok {
		job = &imageJob{image: &relaymodel.GeneratedImage{JobId: msg.JobId}}
		jobs[msg.JobId] = job
	}
	if size >= job.payloadSize {
		job.payloadSize = size
		job.image.Payload = payload
		if msg.URL != "" {
			job.image.URL = msg.URL
		}
		if msg.RequestId != "" {
			job.image.RequestId = msg.RequestId
		}
		if msg.Width > 0 {
			job.image.Width = msg.Width
		}
		if msg.Height > 0 {
			job.image.Height = msg.Height
		}
		job.image.Moderated = job.image.Moderated || msg.Moderated
	}
	if job.emitted || job.image.Moderated {
		return
	}
	if c.imageComplete(job.payloadSize, job.image.URL) {
		job.emitted = true
		*emitted = append(*emitted, job.image)
	}
}

func decodeImagePayload(blob string) ([]byte, int) {
	if blob == "" {
		return nil, 0
	}
	if decoded, err := base64.StdEncoding.DecodeString(blob); err == nil {
		return decoded, len(decoded)
	}
	return []byte(blob), len(blob)
}

// GenerateImages is the paginating driver: it runs sessions until count
// images are collected or the page budget runs out, deduplicating jobs across
// sessions. A rate-limit rejection aborts immediately so the coordinator can
// rotate credentials.
func (c *Client) GenerateImages(ctx context.Context, credential *model.Credential, prompt string, count int, aspectRatio string, nsfw bool) <-chan relaymodel.StreamEvent {
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

		if count <= 0 {
			count = 1
		}
		if aspectRatio == "" {
			aspectRatio = "1:1"
		}
		pageBudget := (count+imagineBatchSize-1)/imagineBatchSize + extraPageBudget
		seen := map[string]bool{}
		total := 0

		for page := 0; total < count && page < pageBudget; page++ {
			if page > 0 {
				select {
				case <-time.After(interPageDelay):
				case <-ctx.Done():
					return
				}
			}

			images, err := c.CollectImages(ctx, credential, prompt, aspectRatio, nsfw, page > 0, c.imagineTimeout)
			for _, img := range images {
				if seen[img.JobId] {
					continue
				}
				seen[img.JobId] = true
				total++
				if !emit(relaymodel.ProgressEvent(total, count)) {
					return
				}
				if !emit(relaymodel.ImageEvent(img)) {
					return
				}
				if total >= count {
					break
				}
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				emit(relaymodel.ErrorEvent(err))
				return
			}
			logger.Logger.Debug("imagine page finished",
				zap.Int("page", page),
				zap.Int("collected", total),
				zap.Int("requested", count))
		}
		emit(relaymodel.DoneEvent(""))
	}()
	return out
}
