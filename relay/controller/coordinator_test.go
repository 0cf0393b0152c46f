package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fuchsia74/grok2api/model"
	"github.com/fuchsia74/grok2api/relay/grok"
	relaymodel "github.com/fuchsia74/grok2api/relay/model"
	"github.com/fuchsia74/grok2api/relay/pool"
)

// memoryStore is the in-memory pool.Store used by coordinator tests.
type memoryStore struct {
	rows map[string]*model.Credential
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: map[string]*model.Credential{}}
}

func (s *memoryStore) Get(id string) (*model.Credential, error) {
	if row, ok := s.rows[id]; ok {
		copied := *row
		return &copied, nil
	}
	return nil, nil
}

func (s *memoryStore) List() ([]*model.Credential, error) {
	out := make([]*model.Credential, 0, len(s.rows))
	for _, row := range s.rows {
		copied := *row
		out = append(out, &copied)
	}
	return out, nil
}

func (s *memoryStore) Insert(credential *model.Credential) error {
	copied := *credential
	s.rows[credential.Id] = &copied
	return nil
}

func (s *memoryStore) Update(id string, fields map[string]any) error { return nil }

func (s *memoryStore) Delete(id string) error {
	if _, ok := s.rows[id]; !ok {
		return model.ErrCredentialNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *memoryStore) DeleteAll() error {
	s.rows = map[string]*model.Credential{}
	return nil
}

func (s *memoryStore) Count(onlyActive bool) (int64, error) {
	return int64(len(s.rows)), nil
}

func poolWith(tokens ...string) (*pool.Pool, []string) {
	store := newMemoryStore()
	p := pool.New(store, 10)
	ids := make([]string, 0, len(tokens))
	for _, token := range tokens {
		credential, _ := p.Upsert(pool.ImportEntry{SSOToken: token})
		ids = append(ids, credential.Id)
	}
	return p, ids
}

func drain(events <-chan relaymodel.StreamEvent) []relaymodel.StreamEvent {
	var out []relaymodel.StreamEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func eventsOfType(events []relaymodel.StreamEvent, kind relaymodel.StreamEventType) []relaymodel.StreamEvent {
	var out []relaymodel.StreamEvent
	for _, ev := range events {
		if ev.Type == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestRun_SuccessFirstAttempt(t *testing.T) {
	p, _ := poolWith("token-a")
	c := NewCoordinator(p, 3)

	attempt := func(ctx context.Context, credential *model.Credential, collected int) <-chan relaymodel.StreamEvent {
		out := make(chan relaymodel.StreamEvent, 4)
		out <- relaymodel.TokenEvent("hello")
		out <- relaymodel.DoneEvent("resp-1")
		close(out)
		return out
	}

	events := drain(c.Run(context.Background(), "", attempt))
	require.Len(t, events, 2)
	require.Equal(t, relaymodel.EventToken, events[0].Type)
	require.Equal(t, relaymodel.EventDone, events[1].Type)
}

func TestRun_NoCredentials(t *testing.T) {
	p, _ := poolWith()
	c := NewCoordinator(p, 3)

	attempt := func(ctx context.Context, credential *model.Credential, collected int) <-chan relaymodel.StreamEvent {
		t.Fatal("attempt must not run without credentials")
		return nil
	}

	events := drain(c.Run(context.Background(), "", attempt))
	require.Len(t, events, 1)
	require.Equal(t, grok.ErrKindNoCredentials, grok.KindOf(events[0].Err))
}

func TestRun_RetryableRotatesCredentials(t *testing.T) {
	p, _ := poolWith("token-a", "token-b")
	c := NewCoordinator(p, 3)

	var used []string
	attempt := func(ctx context.Context, credential *model.Credential, collected int) <-chan relaymodel.StreamEvent {
		used = append(used, credential.Id)
		out := make(chan relaymodel.StreamEvent, 4)
		if len(used) == 1 {
			out <- relaymodel.ErrorEvent(grok.RateLimitedError("slow down"))
		} else {
			out <- relaymodel.TokenEvent("ok")
			out <- relaymodel.DoneEvent("")
		}
		close(out)
		return out
	}

	events := drain(c.Run(context.Background(), "", attempt))
	require.Len(t, used, 2)
	require.NotEqual(t, used[0], used[1], "retry must exclude the failed credential")

	infos := eventsOfType(events, relaymodel.EventInfo)
	require.Len(t, infos, 1)
	require.Contains(t, infos[0].Message, "switching credential")
	require.Equal(t, relaymodel.EventDone, events[len(events)-1].Type)
}

func TestRun_AllExhausted(t *testing.T) {
	p, _ := poolWith("token-a", "token-b")
	c := NewCoordinator(p, 5)

	attempt := func(ctx context.Context, credential *model.Credential, collected int) <-chan relaymodel.StreamEvent {
		out := make(chan relaymodel.StreamEvent, 1)
		out <- relaymodel.ErrorEvent(grok.ChallengeError())
		close(out)
		return out
	}

	events := drain(c.Run(context.Background(), "", attempt))
	last := events[len(events)-1]
	require.Equal(t, relaymodel.EventError, last.Type)
	require.Equal(t, grok.ErrKindAllExhausted, grok.KindOf(last.Err))
}

func TestRun_RetryLimit(t *testing.T) {
	p, _ := poolWith("token-a", "token-b", "token-c", "token-d")
	c := NewCoordinator(p, 2)

	attempts := 0
	attempt := func(ctx context.Context, credential *model.Credential, collected int) <-chan relaymodel.StreamEvent {
		attempts++
		out := make(chan relaymodel.StreamEvent, 1)
		out <- relaymodel.ErrorEvent(grok.RateLimitedError("always"))
		close(out)
		return out
	}

	events := drain(c.Run(context.Background(), "", attempt))
	require.Equal(t, 3, attempts, "initial try plus two retries")

	last := events[len(events)-1]
	require.Equal(t, relaymodel.EventError, last.Type)
	require.Contains(t, last.Message, "retry limit reached")
}

func TestRun_TerminalErrorSurfacesUnchanged(t *testing.T) {
	p, _ := poolWith("token-a", "token-b")
	c := NewCoordinator(p, 3)

	terminal := grok.ModerationError()
	attempts := 0
	attempt := func(ctx context.Context, credential *model.Credential, collected int) <-chan relaymodel.StreamEvent {
		attempts++
		out := make(chan relaymodel.StreamEvent, 1)
		out <- relaymodel.ErrorEvent(terminal)
		close(out)
		return out
	}

	events := drain(c.Run(context.Background(), "", attempt))
	require.Equal(t, 1, attempts)
	require.ErrorIs(t, events[len(events)-1].Err, terminal)
}

func TestRun_MessageOnlyErrorClassified(t *testing.T) {
	p, _ := poolWith("token-a", "token-b")
	c := NewCoordinator(p, 3)

	attempts := 0
	attempt := func(ctx context.Context, credential *model.Credential, collected int) <-chan relaymodel.StreamEvent {
		attempts++
		out := make(chan relaymodel.StreamEvent, 2)
		if attempts == 1 {
			// A bare message that only content analysis can classify.
			out <- relaymodel.StreamEvent{Type: relaymodel.EventError, Message: "upstream rate limit hit"}
		} else {
			out <- relaymodel.DoneEvent("")
		}
		close(out)
		return out
	}

	drain(c.Run(context.Background(), "", attempt))
	require.Equal(t, 2, attempts)
}

func TestRun_PreferredCredentialTriedFirst(t *testing.T) {
	p, ids := poolWith("token-a", "token-b", "token-c")
	c := NewCoordinator(p, 3)

	var used []string
	attempt := func(ctx context.Context, credential *model.Credential, collected int) <-chan relaymodel.StreamEvent {
		used = append(used, credential.Id)
		out := make(chan relaymodel.StreamEvent, 2)
		if len(used) == 1 {
			out <- relaymodel.ErrorEvent(grok.UnauthorizedError())
		} else {
			out <- relaymodel.DoneEvent("")
		}
		close(out)
		return out
	}

	drain(c.Run(context.Background(), ids[2], attempt))
	require.Len(t, used, 2)
	require.Equal(t, ids[2], used[0])
	require.NotEqual(t, ids[2], used[1])
}

func TestRun_ImageCollectionAccumulates(t *testing.T) {
	p, _ := poolWith("token-a", "token-b")
	c := NewCoordinator(p, 3)

	var collectedSeen []int
	attempt := func(ctx context.Context, credential *model.Credential, collected int) <-chan relaymodel.StreamEvent {
		collectedSeen = append(collectedSeen, collected)
		out := make(chan relaymodel.StreamEvent, 4)
		if len(collectedSeen) == 1 {
			// Two images land before the credential hits a rate limit.
			out <- relaymodel.ImageEvent(&relaymodel.GeneratedImage{JobId: "job-1"})
			out <- relaymodel.ImageEvent(&relaymodel.GeneratedImage{JobId: "job-2"})
			out <- relaymodel.ErrorEvent(grok.RateLimitedError(""))
		} else {
			out <- relaymodel.ImageEvent(&relaymodel.GeneratedImage{JobId: "job-3"})
			out <- relaymodel.DoneEvent("")
		}
		close(out)
		return out
	}

	events := drain(c.Run(context.Background(), "", attempt))
	require.Equal(t, []int{0, 2}, collectedSeen, "second attempt resumes from the running total")
	require.Len(t, eventsOfType(events, relaymodel.EventImage), 3)
}
