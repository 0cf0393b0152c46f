package grok

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
)

// ErrorKind classifies upstream failures for the retry coordinator and the
// outward status mapping.
type ErrorKind string

const (
	ErrKindTransport     ErrorKind = "transport"
	ErrKindUpstreamHTTP  ErrorKind = "upstream_http"
	ErrKindChallenge     ErrorKind = "anti_bot_challenge"
	ErrKindUnauthorized  ErrorKind = "unauthorized"
	ErrKindRateLimited   ErrorKind = "rate_limited"
	ErrKindModeration    ErrorKind = "moderation_blocked"
	ErrKindModelNotFound ErrorKind = "model_not_found"
	ErrKindNoCredentials ErrorKind = "no_credentials"
	ErrKindAllExhausted  ErrorKind = "all_credentials_exhausted"
	ErrKindIncomplete    ErrorKind = "incomplete_result"
	ErrKindInternal      ErrorKind = "internal"
)

// Error is the classified relay error. Status carries the upstream HTTP
// status when one exists.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func TransportError(cause error) *Error {
	return wrapError(ErrKindTransport, "upstream transport failure", cause)
}

func UpstreamHTTPError(status int, body string) *Error {
	if len(body) > 256 {
		body = body[:256]
	}
	e := newError(ErrKindUpstreamHTTP, fmt.Sprintf("upstream returned %d: %s", status, strings.TrimSpace(body)))
	e.Status = status
	return e
}

func ChallengeError() *Error {
	e := newError(ErrKindChallenge, "upstream served an anti-bot challenge page")
	e.Status = http.StatusForbidden
	return e
}

func UnauthorizedError() *Error {
	e := newError(ErrKindUnauthorized, "credential rejected by upstream (unauthorized)")
	e.Status = http.StatusUnauthorized
	return e
}

func RateLimitedError(detail string) *Error {
	msg := "upstream rate limited"
	if detail != "" {
		msg += ": " + detail
	}
	e := newError(ErrKindRateLimited, msg)
	e.Status = http.StatusTooManyRequests
	return e
}

func ModerationError() *Error {
	return newError(ErrKindModeration, "generation blocked by upstream moderation")
}

func ModelNotFoundError(model string) *Error {
	return newError(ErrKindModelNotFound, fmt.Sprintf("model %q not found", model))
}

func NoCredentialsError() *Error {
	return newError(ErrKindNoCredentials, "no credentials available")
}

func AllExhaustedError(cause error) *Error {
	return wrapError(ErrKindAllExhausted, "all excluded credentials failed", cause)
}

// RetryLimitError is the terminal condition after the retry bound was hit;
// cause is the last retryable failure.
func RetryLimitError(cause error) *Error {
	e := wrapError(ErrKindAllExhausted, "retry limit reached", cause)
	e.Status = http.StatusTooManyRequests
	return e
}

func IncompleteResultError(detail string) *Error {
	return newError(ErrKindIncomplete, "upstream stream ended without a usable result: "+detail)
}

// KindOf extracts the classified kind, defaulting to internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindInternal
}

// IsRetryable reports whether switching credentials may help. Classified
// kinds are authoritative; for errors that crossed an event boundary as bare
// messages, message content decides.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch KindOf(err) {
	case ErrKindRateLimited, ErrKindChallenge, ErrKindUnauthorized:
		return true
	case ErrKindInternal:
		return messageLooksRetryable(err.Error())
	}
	return false
}

func messageLooksRetryable(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range []string{
		"rate limit",
		"too many requests",
		"anti-bot challenge",
		"unauthorized",
		"401",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// StatusCode maps a terminal error onto the outward HTTP status.
func StatusCode(err error) int {
	switch KindOf(err) {
	case ErrKindModelNotFound:
		return http.StatusNotFound
	case ErrKindRateLimited, ErrKindAllExhausted:
		return http.StatusTooManyRequests
	case ErrKindNoCredentials:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// challengeMarkers are case-insensitive substrings of the interstitial pages
// the upstream serves instead of the API response when a request is flagged.
var challengeMarkers = []string{
	"just a moment",
	"attention required",
	"cf-chl",
	"cf_chl",
	"challenge-platform",
	"enable javascript and cookies",
	"cloudflare",
}

// looksLikeChallenge reports whether a 403 body is an anti-bot interstitial
// rather than a real API denial.
func looksLikeChallenge(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
