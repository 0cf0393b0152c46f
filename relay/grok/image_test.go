package grok

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"runtime"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	relaymodel "github.com/fuchsia74/grok2api/relay/model"
)

type fakeRead struct {
	data []byte
	err  error
}

// fakeSession is a scripted DuplexSession. Reads drain the feed channel;
// tests that want a clean close append a CloseError entry, tests that want
// the settle timer to fire leave the channel open.
type fakeSession struct {
	sent []any
	feed chan fakeRead
}

func newFakeSession(buffer int) *fakeSession {
	return &fakeSession{feed: make(chan fakeRead, buffer)}
}

func (s *fakeSession) SendJSON(v any) error {
	s.sent = append(s.sent, v)
	return nil
}

func (s *fakeSession) ReadMessage() ([]byte, error) {
	rr := <-s.feed
	return rr.data, rr.err
}

func (s *fakeSession) Close() error { return nil }

func (s *fakeSession) push(t *testing.T, msg imagineMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	s.feed <- fakeRead{data: data}
}

func (s *fakeSession) pushClose(code int) {
	s.feed <- fakeRead{err: &websocket.CloseError{Code: code}}
}

func imageClientWith(sessions ...*fakeSession) *Client {
	next := 0
	return NewClient(
		WithSessionOpener(func(ctx context.Context, url string, header http.Header) (DuplexSession, error) {
			s := sessions[next]
			if next < len(sessions)-1 {
				next++
			}
			return s, nil
		}),
		WithImagineTimeout(2*time.Second),
	)
}

func largeBlob() string {
	return base64.StdEncoding.EncodeToString(make([]byte, imageCompleteSizeThreshold+1))
}

func TestCollectImages_EmitsOncePerCompleteJob(t *testing.T) {
	session := newFakeSession(16)
	client := imageClientWith(session)

	// Small preview first, then the full payload for the same job.
	session.push(t, imagineMessage{Type: "image", JobId: "job-1", Blob: base64.StdEncoding.EncodeToString([]byte("tiny")), URL: "https://assets.example/preview.webp"})
	session.push(t, imagineMessage{Type: "image", JobId: "job-1", Blob: largeBlob(), URL: "https://assets.example/full.webp", Width: 1024, Height: 768})
	session.push(t, imagineMessage{Type: "image", JobId: "job-1", Blob: largeBlob()})
	session.pushClose(websocket.CloseNormalClosure)

	images, err := client.CollectImages(context.Background(), testCredential(), "a cat", "1:1", false, false, time.Second)
	require.NoError(t, err)
	require.Len(t, images, 1)
	require.Equal(t, "job-1", images[0].JobId)
	require.Equal(t, "https://assets.example/full.webp", images[0].URL)
	require.Equal(t, 1024, images[0].Width)
	require.Greater(t, len(images[0].Payload), imageCompleteSizeThreshold)
}

func TestCollectImages_JpegURLCountsComplete(t *testing.T) {
	session := newFakeSession(16)
	client := imageClientWith(session)

	session.push(t, imagineMessage{Type: "image", JobId: "job-1", Blob: base64.StdEncoding.EncodeToString([]byte("small")), URL: "https://assets.example/final.JPG"})
	session.pushClose(websocket.CloseNormalClosure)

	images, err := client.CollectImages(context.Background(), testCredential(), "a cat", "1:1", false, false, time.Second)
	require.NoError(t, err)
	require.Len(t, images, 1)
}

func TestCollectImages_ModeratedNeverEmits(t *testing.T) {
	session := newFakeSession(16)
	client := imageClientWith(session)

	session.push(t, imagineMessage{Type: "image", JobId: "job-1", Blob: largeBlob(), Moderated: true})
	session.push(t, imagineMessage{Type: "image", JobId: "job-2", Blob: largeBlob(), URL: "https://assets.example/ok.jpg"})
	session.pushClose(websocket.CloseNormalClosure)

	images, err := client.CollectImages(context.Background(), testCredential(), "a cat", "1:1", false, false, time.Second)
	require.NoError(t, err)
	require.Len(t, images, 1)
	require.Equal(t, "job-2", images[0].JobId)
}

func TestCollectImages_SettlesAfterBatchStatuses(t *testing.T) {
	session := newFakeSession(32)
	client := imageClientWith(session)

	for i := 0; i < imagineBatchSize; i++ {
		session.push(t, imagineMessage{Type: "status", JobId: "job", CurrentStatus: "completed"})
	}
	session.push(t, imagineMessage{Type: "image", JobId: "job-1", Blob: largeBlob(), URL: "https://assets.example/a.jpg"})
	// No close: the settle timer must resolve the session.

	start := time.Now()
	images, err := client.CollectImages(context.Background(), testCredential(), "a cat", "1:1", false, false, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, images, 1)
	require.Less(t, time.Since(start), 3*time.Second)
}

func TestCollectImages_TimeoutReturnsPartial(t *testing.T) {
	session := newFakeSession(16)
	client := imageClientWith(session)

	session.push(t, imagineMessage{Type: "image", JobId: "job-1", Blob: largeBlob(), URL: "https://assets.example/a.jpg"})

	images, err := client.CollectImages(context.Background(), testCredential(), "a cat", "1:1", false, false, 200*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, images, 1)
}

func TestCollectImages_ErrorMessageRejects(t *testing.T) {
	session := newFakeSession(16)
	client := imageClientWith(session)

	session.push(t, imagineMessage{Type: "error", Message: "generation failed"})

	_, err := client.CollectImages(context.Background(), testCredential(), "a cat", "1:1", false, false, time.Second)
	require.Error(t, err)
	require.Equal(t, ErrKindUpstreamHTTP, KindOf(err))
}

func TestCollectImages_RateLimitMessageRejects(t *testing.T) {
	session := newFakeSession(16)
	client := imageClientWith(session)

	session.push(t, imagineMessage{Type: "error", Message: "rate limit exceeded"})

	_, err := client.CollectImages(context.Background(), testCredential(), "a cat", "1:1", false, false, time.Second)
	require.Equal(t, ErrKindRateLimited, KindOf(err))
}

func TestCollectImages_RateLimitCloseCode(t *testing.T) {
	for _, code := range []int{websocket.ClosePolicyViolation, websocket.CloseTryAgainLater} {
		session := newFakeSession(16)
		client := imageClientWith(session)
		session.pushClose(code)

		_, err := client.CollectImages(context.Background(), testCredential(), "a cat", "1:1", false, false, time.Second)
		require.Equal(t, ErrKindRateLimited, KindOf(err), "close code %d", code)
	}
}

func TestCollectImages_SendsContinuationFlag(t *testing.T) {
	session := newFakeSession(16)
	client := imageClientWith(session)
	session.pushClose(websocket.CloseNormalClosure)

	_, err := client.CollectImages(context.Background(), testCredential(), "a cat", "16:9", true, true, time.Second)
	require.NoError(t, err)
	require.Len(t, session.sent, 1)

	request := session.sent[0].(imagineRequest)
	require.Equal(t, "conversation.item.create", request.Type)
	require.Len(t, request.Item.Content, 1)
	require.Equal(t, "input_scroll", request.Item.Content[0].Type)
	require.Equal(t, "16:9", request.Item.Content[0].Properties.AspectRatio)
	require.True(t, request.Item.Content[0].Properties.EnableNsfw)
}

func TestGenerateImages_PaginatesAndDedupes(t *testing.T) {
	first := newFakeSession(16)
	first.push(t, imagineMessage{Type: "image", JobId: "job-1", Blob: largeBlob(), URL: "https://assets.example/1.jpg"})
	first.pushClose(websocket.CloseNormalClosure)

	second := newFakeSession(16)
	// Duplicate of job-1 plus one new job.
	second.push(t, imagineMessage{Type: "image", JobId: "job-1", Blob: largeBlob(), URL: "https://assets.example/1.jpg"})
	second.push(t, imagineMessage{Type: "image", JobId: "job-2", Blob: largeBlob(), URL: "https://assets.example/2.jpg"})
	second.pushClose(websocket.CloseNormalClosure)

	client := imageClientWith(first, second)

	var images []*relaymodel.GeneratedImage
	var progress []int
	var done bool
	for ev := range client.GenerateImages(context.Background(), testCredential(), "a cat", 2, "1:1", false) {
		switch ev.Type {
		case relaymodel.EventImage:
			images = append(images, ev.Image)
		case relaymodel.EventProgress:
			progress = append(progress, ev.Progress)
		case relaymodel.EventDone:
			done = true
		case relaymodel.EventError:
			t.Fatalf("unexpected error event: %s", ev.Message)
		}
	}

	require.True(t, done)
	require.Len(t, images, 2)
	require.Equal(t, "job-1", images[0].JobId)
	require.Equal(t, "job-2", images[1].JobId)
	require.Equal(t, []int{1, 2}, progress)

	// The first session is the initial request, later pages are scrolls.
	require.Equal(t, "input_text", first.sent[0].(imagineRequest).Item.Content[0].Type)
	require.Equal(t, "input_scroll", second.sent[0].(imagineRequest).Item.Content[0].Type)
}

func TestGenerateImages_PageBudgetBoundsSessions(t *testing.T) {
	opened := 0
	client := NewClient(
		WithSessionOpener(func(ctx context.Context, url string, header http.Header) (DuplexSession, error) {
			opened++
			s := newFakeSession(4)
			s.pushClose(websocket.CloseNormalClosure)
			return s, nil
		}),
		WithImagineTimeout(time.Second),
	)

	var done bool
	for ev := range client.GenerateImages(context.Background(), testCredential(), "a cat", 1, "1:1", false) {
		if ev.Type == relaymodel.EventDone {
			done = true
		}
	}
	require.True(t, done)
	// ceil(1/6)+2 pages.
	require.Equal(t, 3, opened)
}

func TestGenerateImages_RateLimitAbortsDriver(t *testing.T) {
	session := newFakeSession(4)
	session.pushClose(websocket.ClosePolicyViolation)
	client := imageClientWith(session)

	var events []relaymodel.StreamEvent
	for ev := range client.GenerateImages(context.Background(), testCredential(), "a cat", 12, "1:1", false) {
		events = append(events, ev)
	}
	require.Len(t, events, 1)
	require.Equal(t, relaymodel.EventError, events[0].Type)
	require.Equal(t, ErrKindRateLimited, KindOf(events[0].Err))
}

func TestDefaultImageComplete(t *testing.T) {
	require.True(t, defaultImageComplete(imageCompleteSizeThreshold+1, ""))
	require.True(t, defaultImageComplete(0, "https://assets.example/x.jpg"))
	require.True(t, defaultImageComplete(0, "https://assets.example/x.JPEG"))
	require.False(t, defaultImageComplete(100, "https://assets.example/x.webp"))
	require.False(t, defaultImageComplete(imageCompleteSizeThreshold, ""))
}

func TestCollectImages_ReaderExitsAfterTimeout(t *testing.T) {
	baseline := runtime.NumGoroutine()

	session := newFakeSession(16)
	client := imageClientWith(session)

	// Only an incomplete preview arrives, so the window lapses with nothing
	// to emit.
	session.push(t, imagineMessage{Type: "image", JobId: "job-1", Blob: base64.StdEncoding.EncodeToString([]byte("tiny")), URL: "https://assets.example/preview.webp"})

	images, err := client.CollectImages(context.Background(), testCredential(), "a cat", "1:1", false, false, 50*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, images)

	// A message landing after the deadline must release the reader instead
	// of leaving it parked on the result channel.
	session.push(t, imagineMessage{Type: "image", JobId: "job-1", Blob: largeBlob(), URL: "https://assets.example/late.jpg"})
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 2*time.Second, 10*time.Millisecond)
}
