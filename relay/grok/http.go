package grok

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"

	"github.com/fuchsia74/grok2api/model"
)

// postStream issues an authenticated POST and returns the raw response body
// for NDJSON consumption. Non-2xx statuses are classified before any body
// streaming starts.
func (c *Client) postStream(ctx context.Context, credential *model.Credential, path string, payload any) (io.ReadCloser, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, wrapError(ErrKindInternal, "encode upstream request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return nil, wrapError(ErrKindInternal, "build upstream request", err)
	}
	req.Header = c.authHeaders(credential)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, TransportError(err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.Body, nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return nil, classifyStatus(resp.StatusCode, string(raw))
}

// classifyStatus maps an upstream HTTP failure onto the error taxonomy. A 403
// is a challenge only when the body looks like an interstitial page.
func classifyStatus(status int, body string) *Error {
	switch status {
	case http.StatusUnauthorized:
		return UnauthorizedError()
	case http.StatusForbidden:
		if looksLikeChallenge(body) {
			return ChallengeError()
		}
		return UpstreamHTTPError(status, body)
	case http.StatusTooManyRequests:
		return RateLimitedError(strings.TrimSpace(body))
	default:
		return UpstreamHTTPError(status, body)
	}
}

// postJSON issues an authenticated POST and decodes the JSON response into
// out when out is non-nil.
func (c *Client) postJSON(ctx context.Context, credential *model.Credential, path string, payload, out any) error {
	body, err := c.postStream(ctx, credential, path, payload)
	if err != nil {
		return err
	}
	defer body.Close()
	if out == nil {
		io.Copy(io.Discard, body)
		return nil
	}
	return errors.Wrap(json.NewDecoder(body).Decode(out), "decode upstream response")
}
