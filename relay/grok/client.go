// Package grok speaks the upstream product's private protocols: streamed
// chat NDJSON, the duplex imagine socket, and the video generation workflow.
package grok

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fuchsia74/grok2api/common/config"
	"github.com/fuchsia74/grok2api/model"
)

const (
	chatPath       = "/rest/app-chat/conversations/new"
	likePostPath   = "/rest/media/post/like"
	createPostPath = "/rest/media/post/create"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// Client issues authenticated calls against the upstream product. One client
// serves all credentials; per-call auth comes from the credential argument.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	imagineURL  string
	openSession SessionOpener

	// imagineTimeout bounds one duplex session before it resolves with
	// whatever was collected.
	imagineTimeout time.Duration

	// imageComplete decides when an image payload is worth emitting. This is
	// a heuristic, not a protocol guarantee; see defaultImageComplete.
	imageComplete func(payloadSize int, url string) bool
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

func WithImagineURL(wsURL string) Option {
	return func(c *Client) { c.imagineURL = wsURL }
}

func WithSessionOpener(opener SessionOpener) Option {
	return func(c *Client) { c.openSession = opener }
}

func WithImagineTimeout(d time.Duration) Option {
	return func(c *Client) { c.imagineTimeout = d }
}

func WithImageCompletePredicate(fn func(payloadSize int, url string) bool) Option {
	return func(c *Client) { c.imageComplete = fn }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:     &http.Client{Timeout: time.Duration(config.RelayTimeout) * time.Second},
		baseURL:        config.GrokBaseURL,
		imagineURL:     config.ImagineWSURL,
		openSession:    OpenWebsocketSession,
		imagineTimeout: config.ImagineTimeout,
		imageComplete:  defaultImageComplete,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// authHeaders builds the cookie and identity headers for one credential.
func (c *Client) authHeaders(credential *model.Credential) http.Header {
	header := http.Header{}
	cookies := []string{"sso=" + credential.SSOToken}
	if credential.SSORWToken != "" {
		cookies = append(cookies, "sso-rw="+credential.SSORWToken)
	}
	if credential.CFClearance != "" {
		cookies = append(cookies, "cf_clearance="+credential.CFClearance)
	}
	header.Set("Cookie", strings.Join(cookies, "; "))
	if credential.UserId != "" {
		header.Set("x-userid", credential.UserId)
	}
	header.Set("User-Agent", userAgent)
	header.Set("Origin", c.baseURL)
	header.Set("Referer", c.baseURL+"/")
	return header
}

func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s%s", c.baseURL, path)
}

// FetchAsset issues a GET against an upstream asset URL for the media proxy.
// credential may be nil for assets that need no cookie.
func (c *Client) FetchAsset(ctx context.Context, credential *model.Credential, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, wrapError(ErrKindInternal, "build asset request", err)
	}
	if credential != nil {
		req.Header = c.authHeaders(credential)
	} else {
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Referer", c.baseURL+"/")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, TransportError(err)
	}
	return resp, nil
}
