package grok

import (
	"bufio"
	"context"
	"encoding/json"
	"strings"

	"github.com/Laisky/zap"

	"github.com/fuchsia74/grok2api/common/logger"
	"github.com/fuchsia74/grok2api/model"
	relaymodel "github.com/fuchsia74/grok2api/relay/model"
)

const (
	defaultVideoDuration   = 6
	defaultVideoResolution = "480p"
)

// VideoParams parameterizes one video generation.
type VideoParams struct {
	ImageURL    string
	Prompt      string
	PostId      string
	AspectRatio string
	// DurationSeconds defaults to defaultVideoDuration when zero.
	DurationSeconds int
	// Resolution defaults to defaultVideoResolution when empty.
	Resolution string
	Mode       string
}

type likeRequest struct {
	PostId string `json:"postId"`
}

type createPostRequest struct {
	MediaURL string `json:"mediaUrl"`
}

type postResponse struct {
	Post struct {
		Id string `json:"id"`
	} `json:"post"`
}

type videoGenOverrides struct {
	PostId          string `json:"postId"`
	AspectRatio     string `json:"aspectRatio"`
	DurationSeconds int    `json:"durationSeconds"`
	Resolution      string `json:"resolution"`
	Mode            string `json:"mode,omitempty"`
}

type videoGenRequest struct {
	Temporary         bool              `json:"temporary"`
	ModelName         string            `json:"modelName"`
	Message           string            `json:"message"`
	FileAttachments   []string          `json:"fileAttachments"`
	ImageAttachments  []string          `json:"imageAttachments"`
	ToolOverrides     map[string]any    `json:"toolOverrides"`
	VideoGenOverrides videoGenOverrides `json:"videoGenOverrides"`
}

// videoLine is one NDJSON line of the generation progress stream.
type videoLine struct {
	Result struct {
		Response struct {
			StreamingVideoGenerationResponse *struct {
				Progress          int    `json:"progress"`
				VideoPostId       string `json:"videoPostId"`
				VideoId           string `json:"videoId"`
				VideoURL          string `json:"videoUrl"`
				ThumbnailImageURL string `json:"thumbnailImageUrl"`
				Moderated         bool   `json:"moderated"`
			} `json:"streamingVideoGenerationResponse"`
		} `json:"response"`
	} `json:"result"`
}

// GenerateVideo runs the like/create/generate workflow and streams progress.
// The like/create bootstrap is best effort: the generation request is
// submitted even when every bootstrap step failed.
func (c *Client) GenerateVideo(ctx context.Context, credential *model.Credential, params VideoParams) <-chan relaymodel.StreamEvent {
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

		postId := c.bootstrapPost(ctx, credential, params.PostId, params.ImageURL)

		if params.DurationSeconds <= 0 {
			params.DurationSeconds = defaultVideoDuration
		}
		if params.Resolution == "" {
			params.Resolution = defaultVideoResolution
		}
		payload := videoGenRequest{
			Temporary:        true,
			ModelName:        "grok-video",
			Message:          params.ImageURL + "\n" + params.Prompt,
			FileAttachments:  []string{},
			ImageAttachments: []string{},
			ToolOverrides:    map[string]any{},
			VideoGenOverrides: videoGenOverrides{
				PostId:          postId,
				AspectRatio:     params.AspectRatio,
				DurationSeconds: params.DurationSeconds,
				Resolution:      params.Resolution,
				Mode:            params.Mode,
			},
		}

		body, err := c.postStream(ctx, credential, chatPath, payload)
		if err != nil {
			emit(relaymodel.ErrorEvent(err))
			return
		}
		defer body.Close()

		var (
			videoId      string
			videoURL     string
			thumbnailURL string
			lastProgress = -1
		)

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var parsed videoLine
			if err := json.Unmarshal([]byte(line), &parsed); err != nil {
				continue
			}
			status := parsed.Result.Response.StreamingVideoGenerationResponse
			if status == nil {
				continue
			}
			if status.Moderated {
				emit(relaymodel.ErrorEvent(ModerationError()))
				return
			}
			if status.VideoPostId != "" {
				videoId = status.VideoPostId
			} else if status.VideoId != "" {
				videoId = status.VideoId
			}
			if status.VideoURL != "" {
				videoURL = status.VideoURL
			}
			if status.ThumbnailImageURL != "" {
				thumbnailURL = status.ThumbnailImageURL
			}
			if status.Progress != lastProgress {
				lastProgress = status.Progress
				if !emit(relaymodel.ProgressEvent(status.Progress, 100)) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			emit(relaymodel.ErrorEvent(TransportError(err)))
			return
		}

		if videoId == "" || videoURL == "" {
			emit(relaymodel.ErrorEvent(IncompleteResultError("video stream ended without id or media url")))
			return
		}

		video := &relaymodel.GeneratedVideo{
			VideoId: videoId,
			URL:     ProxyVideoURL(videoURL, credential.Id),
		}
		if thumbnailURL != "" {
			video.ThumbnailURL = ProxyAssetURL(thumbnailURL)
		}
		if !emit(relaymodel.CompleteEvent(video)) {
			return
		}
		emit(relaymodel.DoneEvent(videoId))
	}()
	return out
}

// bootstrapPost tries to like the seed post; when that fails it creates a
// post from the image URL and retries the like. Every failure degrades to
// the previous post id rather than aborting.
func (c *Client) bootstrapPost(ctx context.Context, credential *model.Credential, postId, imageURL string) string {
	if err := c.likePost(ctx, credential, postId); err == nil {
		return postId
	} else {
		logger.Logger.Debug("like failed, creating post", zap.String("post_id", postId), zap.Error(err))
	}

	createdId, err := c.createPost(ctx, credential, imageURL)
	if err != nil && strings.HasSuffix(strings.ToLower(imageURL), ".png") {
		createdId, err = c.createPost(ctx, credential, strings.TrimSuffix(imageURL, ".png")+".jpg")
	}
	if err != nil {
		logger.Logger.Warn("post creation failed, proceeding with original post id",
			zap.String("post_id", postId), zap.Error(err))
		return postId
	}

	if err := c.likePost(ctx, credential, createdId); err != nil {
		logger.Logger.Warn("like on created post failed", zap.String("post_id", createdId), zap.Error(err))
	}
	return createdId
}

func (c *Client) likePost(ctx context.Context, credential *model.Credential, postId string) error {
	return c.postJSON(ctx, credential, likePostPath, likeRequest{PostId: postId}, nil)
}

func (c *Client) createPost(ctx context.Context, credential *model.Credential, mediaURL string) (string, error) {
	var resp postResponse
	if err := c.postJSON(ctx, credential, createPostPath, createPostRequest{MediaURL: mediaURL}, &resp); err != nil {
		return "", err
	}
	if resp.Post.Id == "" {
		return "", newError(ErrKindUpstreamHTTP, "post creation returned no id")
	}
	return resp.Post.Id, nil
}
