package model

// StreamEventType tags the closed set of events every generation component
// emits. The outward adapter renders these as OpenAI SSE chunks or a single
// JSON completion.
type StreamEventType string

const (
	EventToken    StreamEventType = "token"
	EventImage    StreamEventType = "image"
	EventProgress StreamEventType = "progress"
	EventInfo     StreamEventType = "info"
	EventError    StreamEventType = "error"
	EventComplete StreamEventType = "complete"
	EventDone     StreamEventType = "done"
)

// GeneratedImage is one collected image generation result.
type GeneratedImage struct {
	JobId     string `json:"job_id"`
	RequestId string `json:"request_id,omitempty"`
	URL       string `json:"url"`
	Payload   []byte `json:"-"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Moderated bool   `json:"moderated,omitempty"`
}

// GeneratedVideo is the terminal payload of a successful video generation.
type GeneratedVideo struct {
	VideoId      string `json:"video_id"`
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// StreamEvent is the universal event flowing out of every generation
// component. Only the fields relevant to Type are populated.
type StreamEvent struct {
	Type StreamEventType `json:"type"`

	// EventToken
	Token string `json:"token,omitempty"`

	// EventImage
	Image *GeneratedImage `json:"image,omitempty"`

	// EventProgress
	Progress int `json:"progress,omitempty"`
	Total    int `json:"total,omitempty"`

	// EventInfo / EventError
	Message string `json:"message,omitempty"`
	// Err preserves the classified error for the retry coordinator. Never
	// serialized; Message carries the user-visible text.
	Err error `json:"-"`

	// EventComplete
	Video *GeneratedVideo `json:"video,omitempty"`

	// EventDone
	ResponseId string `json:"response_id,omitempty"`
}

func TokenEvent(token string) StreamEvent {
	return StreamEvent{Type: EventToken, Token: token}
}

func ImageEvent(img *GeneratedImage) StreamEvent {
	return StreamEvent{Type: EventImage, Image: img}
}

func ProgressEvent(progress, total int) StreamEvent {
	return StreamEvent{Type: EventProgress, Progress: progress, Total: total}
}

func InfoEvent(message string) StreamEvent {
	return StreamEvent{Type: EventInfo, Message: message}
}

func ErrorEvent(err error) StreamEvent {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return StreamEvent{Type: EventError, Message: msg, Err: err}
}

func CompleteEvent(video *GeneratedVideo) StreamEvent {
	return StreamEvent{Type: EventComplete, Video: video}
}

func DoneEvent(responseId string) StreamEvent {
	return StreamEvent{Type: EventDone, ResponseId: responseId}
}
