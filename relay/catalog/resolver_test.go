package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestResolver(remoteIds ...string) *Resolver {
	r := NewResolver(nil, nil)
	r.remote.idList = remoteIds
	return r
}

func TestResolve_ExactAndAlias(t *testing.T) {
	r := newTestResolver()

	resolved, ok := r.Resolve("grok-4-1-thinking", "")
	require.True(t, ok)
	require.Equal(t, MatchExact, resolved.MatchedBy)
	require.Equal(t, "grok-4-1-thinking", resolved.Descriptor.Id)

	resolved, ok = r.Resolve("grok-4.1-thinking", "")
	require.True(t, ok)
	require.Equal(t, MatchAlias, resolved.MatchedBy)
	require.Equal(t, "grok-4-1-thinking", resolved.Descriptor.Id)

	resolved, ok = r.Resolve("grok", "")
	require.True(t, ok)
	require.Equal(t, "grok-4-1", resolved.Descriptor.Id)
}

func TestResolve_RemoteExactCanonicalizes(t *testing.T) {
	r := newTestResolver("grok-4-0709")
	resolved, ok := r.Resolve("grok-4-0709", "")
	require.True(t, ok)
	require.Equal(t, MatchExact, resolved.MatchedBy)
	require.Equal(t, "grok-4", resolved.Descriptor.Id)
}

func TestResolve_UnusableRemoteIdExcluded(t *testing.T) {
	r := newTestResolver("grok-2-1212")
	_, ok := r.Resolve("grok-2-1212", "")
	require.False(t, ok)
}

func TestResolve_Wildcard(t *testing.T) {
	r := newTestResolver("grok-4-0709")
	resolved, ok := r.Resolve("grok-4*", "")
	require.True(t, ok)
	require.Equal(t, MatchWildcard, resolved.MatchedBy)
	// Builtin candidates come first, shortest id wins.
	require.Equal(t, "grok-4", resolved.Descriptor.Id)
	require.Equal(t, "grok-4", resolved.CandidateIds[0])
	require.Contains(t, resolved.CandidateIds, "grok-4-0709")
}

func TestResolve_Prefix(t *testing.T) {
	r := newTestResolver()
	resolved, ok := r.Resolve("grok-vid", "")
	require.True(t, ok)
	require.Equal(t, MatchPrefix, resolved.MatchedBy)
	require.Equal(t, "grok-video", resolved.Descriptor.Id)
}

func TestResolve_KindFilter(t *testing.T) {
	r := newTestResolver()
	_, ok := r.Resolve("grok-4", KindImage)
	require.False(t, ok)

	resolved, ok := r.Resolve("grok*", KindVideo)
	require.True(t, ok)
	require.Equal(t, KindVideo, resolved.Descriptor.Kind)
}

func TestResolve_Unknown(t *testing.T) {
	r := newTestResolver()
	_, ok := r.Resolve("claude-3", "")
	require.False(t, ok)
	_, ok = r.Resolve("", "")
	require.False(t, ok)
}

func TestListCatalog_MergesAndMarksUnusable(t *testing.T) {
	r := newTestResolver("grok-4-0709", "grok-2-1212", "grok-4")

	entries := r.ListCatalog(ListOptions{})
	byId := map[string]Entry{}
	for _, entry := range entries {
		_, dup := byId[entry.Id]
		require.False(t, dup, "duplicate id %s", entry.Id)
		byId[entry.Id] = entry
	}
	require.True(t, byId["grok-4"].Builtin, "builtin wins the dedup")
	require.True(t, byId["grok-4-0709"].Usable)
	_, listed := byId["grok-2-1212"]
	require.False(t, listed, "unusable ids are hidden by default")

	entries = r.ListCatalog(ListOptions{IncludeUnusable: true})
	found := false
	for _, entry := range entries {
		if entry.Id == "grok-2-1212" {
			found = true
			require.False(t, entry.Usable)
		}
	}
	require.True(t, found)
}

func TestSyncCatalog_FetchAndTTL(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.Equal(t, "/models", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"id": "grok-4-0709"}, {"id": "grok-4-0709"}, {"id": "grok-video-beta"}},
		})
	}))
	defer server.Close()

	r := NewResolver(server.Client(), nil)
	opts := SyncOptions{APIKey: "test-key", BaseURL: server.URL, TTL: time.Hour}

	result := r.SyncCatalog(context.Background(), opts)
	require.True(t, result.OK)
	require.Equal(t, []string{"grok-4-0709", "grok-video-beta"}, result.Ids, "duplicates are dropped")
	require.Equal(t, 1, calls)

	// Fresh entry short-circuits the second sync.
	result = r.SyncCatalog(context.Background(), opts)
	require.True(t, result.FromCache)
	require.Equal(t, 1, calls)

	// Force bypasses the TTL.
	opts.Force = true
	result = r.SyncCatalog(context.Background(), opts)
	require.False(t, result.FromCache)
	require.Equal(t, 2, calls)
}

func TestSyncCatalog_FailurePreservesIds(t *testing.T) {
	fail := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail {
			http.Error(w, "boom", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]string{{"id": "grok-4-0709"}}})
	}))
	defer server.Close()

	r := NewResolver(server.Client(), nil)
	opts := SyncOptions{APIKey: "test-key", BaseURL: server.URL, TTL: time.Nanosecond, Force: true}

	result := r.SyncCatalog(context.Background(), opts)
	require.True(t, result.OK)

	fail = true
	result = r.SyncCatalog(context.Background(), opts)
	require.False(t, result.OK)
	require.Equal(t, http.StatusBadGateway, result.Status)
	require.Equal(t, []string{"grok-4-0709"}, result.Ids, "stale ids survive a failed refresh")

	// Stale ids still resolve.
	resolved, ok := r.Resolve("grok-4-0709", "")
	require.True(t, ok)
	require.Equal(t, "grok-4", resolved.Descriptor.Id)
}

func TestSyncCatalog_NoAPIKey(t *testing.T) {
	r := NewResolver(nil, nil)
	result := r.SyncCatalog(context.Background(), SyncOptions{BaseURL: "http://127.0.0.1:0", TTL: time.Hour})
	require.False(t, result.OK)
	require.Contains(t, result.Error, "not configured")
}

func TestResolveWithSync_RetriesAfterSync(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]string{{"id": "grok-4-new"}}})
	}))
	defer server.Close()

	r := NewResolver(server.Client(), nil)
	opts := SyncOptions{APIKey: "test-key", BaseURL: server.URL, TTL: time.Hour}

	resolved, ok := r.ResolveWithSync(context.Background(), "grok-4-new", "", opts)
	require.True(t, ok)
	require.Equal(t, "grok-4", resolved.Descriptor.Id)
}
