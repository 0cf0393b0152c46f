package model

import (
	"encoding/json"
	"strings"
)

// Message is one turn of an OpenAI-shaped conversation. Content accepts both
// a plain string and the array-of-parts form.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
	Name    string `json:"name,omitempty"`
}

type messagePart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// StringContent flattens Content into plain text, concatenating text parts.
func (m Message) StringContent() string {
	switch v := m.Content.(type) {
	case string:
		return v
	case []any:
		var sb strings.Builder
		for _, part := range v {
			raw, err := json.Marshal(part)
			if err != nil {
				continue
			}
			var p messagePart
			if err := json.Unmarshal(raw, &p); err != nil {
				continue
			}
			if p.Type == "" || p.Type == "text" {
				sb.WriteString(p.Text)
			}
		}
		return sb.String()
	default:
		return ""
	}
}

// GeneralOpenAIRequest is the inbound chat completions payload. Only the
// fields this gateway acts on are bound; unknown fields are ignored.
type GeneralOpenAIRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream,omitempty"`
	N        int       `json:"n,omitempty"`
}

// ImageRequest is the inbound /v1/images/generations payload.
type ImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n,omitempty"`
	Size           string `json:"size,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// ChatCompletionsStreamResponse is one OpenAI SSE chunk.
type ChatCompletionsStreamResponse struct {
	Id      string                                `json:"id"`
	Object  string                                `json:"object"`
	Created int64                                 `json:"created"`
	Model   string                                `json:"model"`
	Choices []ChatCompletionsStreamResponseChoice `json:"choices"`
}

type ChatCompletionsStreamResponseChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

type StreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// TextResponse is the non-streaming chat completions body.
type TextResponse struct {
	Id      string               `json:"id"`
	Object  string               `json:"object"`
	Created int64                `json:"created"`
	Model   string               `json:"model"`
	Choices []TextResponseChoice `json:"choices"`
	Usage   Usage                `json:"usage"`
}

type TextResponseChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// ImageResponse is the OpenAI images API response body.
type ImageResponse struct {
	Created int64       `json:"created"`
	Data    []ImageData `json:"data"`
}

type ImageData struct {
	URL     string `json:"url,omitempty"`
	B64Json string `json:"b64_json,omitempty"`
}
