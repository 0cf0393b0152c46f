package catalog

import (
	"context"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"
)

// MatchKind records how a query landed on its descriptor.
type MatchKind string

const (
	MatchExact    MatchKind = "exact"
	MatchAlias    MatchKind = "alias"
	MatchWildcard MatchKind = "wildcard"
	MatchPrefix   MatchKind = "prefix"
)

// Resolved is the transient result of one resolution call.
type Resolved struct {
	Requested    string     `json:"requested"`
	MatchedBy    MatchKind  `json:"matched_by"`
	Descriptor   Descriptor `json:"descriptor"`
	CandidateIds []string   `json:"candidate_ids,omitempty"`
}

// Resolver owns the remote catalog cache. One long-lived instance serves the
// whole process; the zero TTL/state races on the cache are benign.
type Resolver struct {
	remote *remoteCatalog
}

func NewResolver(client *http.Client, now func() time.Time) *Resolver {
	return &Resolver{remote: newRemoteCatalog(client, now)}
}

// Resolve normalizes query and tries, in order: exact id match against the
// builtin registry and the canonicalized remote catalog, the alias table, and
// finally prefix or wildcard matching. kind narrows candidates when non-empty.
func (r *Resolver) Resolve(query string, kind ModelKind) (*Resolved, bool) {
	q := normalizeModelId(query)
	if q == "" {
		return nil, false
	}

	if d, ok := builtinById[q]; ok && kindMatches(d, kind) {
		return &Resolved{Requested: query, MatchedBy: MatchExact, Descriptor: d, CandidateIds: []string{d.Id}}, true
	}
	for _, remoteId := range r.remote.ids() {
		if normalizeModelId(remoteId) != q {
			continue
		}
		if d, ok := Canonicalize(remoteId); ok && kindMatches(d, kind) {
			return &Resolved{Requested: query, MatchedBy: MatchExact, Descriptor: d, CandidateIds: []string{remoteId}}, true
		}
	}

	if canonical, ok := aliases[q]; ok {
		if d, ok := builtinById[canonical]; ok && kindMatches(d, kind) {
			return &Resolved{Requested: query, MatchedBy: MatchAlias, Descriptor: d, CandidateIds: []string{d.Id}}, true
		}
	}

	return r.resolvePattern(query, q, kind)
}

// ResolveWithSync retries a failed resolution after a non-forced catalog
// refresh, so ids that appeared upstream since the last sync still resolve.
func (r *Resolver) ResolveWithSync(ctx context.Context, query string, kind ModelKind, opts SyncOptions) (*Resolved, bool) {
	if resolved, ok := r.Resolve(query, kind); ok {
		return resolved, true
	}
	opts.Force = false
	r.SyncCatalog(ctx, opts)
	return r.Resolve(query, kind)
}

// SyncCatalog refreshes the remote id list, honoring the TTL unless forced.
func (r *Resolver) SyncCatalog(ctx context.Context, opts SyncOptions) SyncResult {
	return r.remote.sync(ctx, opts)
}

type candidate struct {
	id      string
	builtin bool
	desc    Descriptor
}

func (r *Resolver) resolvePattern(requested, q string, kind ModelKind) (*Resolved, bool) {
	match, ok := compilePattern(q)
	if !ok {
		return nil, false
	}

	var candidates []candidate
	seen := map[string]bool{}
	for _, d := range builtinDescriptors {
		if match(d.Id) && kindMatches(d, kind) {
			candidates = append(candidates, candidate{id: d.Id, builtin: true, desc: d})
			seen[d.Id] = true
		}
	}
	for _, remoteId := range r.remote.ids() {
		id := normalizeModelId(remoteId)
		if seen[id] || !match(id) {
			continue
		}
		d, ok := Canonicalize(remoteId)
		if !ok || !kindMatches(d, kind) {
			continue
		}
		candidates = append(candidates, candidate{id: id, builtin: false, desc: d})
		seen[id] = true
	}
	if len(candidates) == 0 {
		return nil, false
	}

	// Representative preference: builtin over remote, then shortest id, then
	// lexicographic.
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.builtin != b.builtin {
			return a.builtin
		}
		if len(a.id) != len(b.id) {
			return len(a.id) < len(b.id)
		}
		return a.id < b.id
	})

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.id)
	}
	matchedBy := MatchPrefix
	if strings.Contains(q, "*") {
		matchedBy = MatchWildcard
	}
	return &Resolved{
		Requested:    requested,
		MatchedBy:    matchedBy,
		Descriptor:   candidates[0].desc,
		CandidateIds: ids,
	}, true
}

// compilePattern turns a query into a matcher: queries containing * become
// anchored case-insensitive wildcard patterns, everything else matches by
// prefix.
func compilePattern(q string) (func(string) bool, bool) {
	if !strings.Contains(q, "*") {
		return func(id string) bool {
			return strings.HasPrefix(normalizeModelId(id), q)
		}, true
	}
	escaped := regexp.QuoteMeta(q)
	escaped = strings.ReplaceAll(escaped, `\*`, ".*")
	re, err := regexp.Compile("(?i)^" + escaped + "$")
	if err != nil {
		return nil, false
	}
	return func(id string) bool {
		return re.MatchString(normalizeModelId(id))
	}, true
}

func kindMatches(d Descriptor, kind ModelKind) bool {
	return kind == "" || d.Kind == kind
}

// Entry is one row of a merged catalog listing.
type Entry struct {
	Id          string    `json:"id"`
	DisplayName string    `json:"display_name,omitempty"`
	Kind        ModelKind `json:"kind,omitempty"`
	Builtin     bool      `json:"builtin"`
	// Usable is false for remote ids no builtin family canonicalizes.
	Usable bool `json:"usable"`
}

type ListOptions struct {
	Kind            ModelKind
	Query           string
	IncludeUnusable bool
}

// ListCatalog merges builtin and remote-derived entries, deduplicated by
// normalized id with builtin winning, optionally filtered by kind and by the
// same prefix/wildcard rule as Resolve.
func (r *Resolver) ListCatalog(opts ListOptions) []Entry {
	match := func(string) bool { return true }
	if q := normalizeModelId(opts.Query); q != "" {
		if m, ok := compilePattern(q); ok {
			match = m
		}
	}

	var entries []Entry
	seen := map[string]bool{}
	for _, d := range builtinDescriptors {
		if !kindMatches(d, opts.Kind) || !match(d.Id) {
			continue
		}
		entries = append(entries, Entry{Id: d.Id, DisplayName: d.DisplayName, Kind: d.Kind, Builtin: true, Usable: true})
		seen[d.Id] = true
	}
	for _, remoteId := range r.remote.ids() {
		id := normalizeModelId(remoteId)
		if seen[id] || !match(id) {
			continue
		}
		seen[id] = true
		d, usable := Canonicalize(remoteId)
		if !usable && !opts.IncludeUnusable {
			continue
		}
		entry := Entry{Id: id, Usable: usable}
		if usable {
			if !kindMatches(d, opts.Kind) {
				continue
			}
			entry.DisplayName = d.DisplayName
			entry.Kind = d.Kind
		} else if opts.Kind != "" {
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Builtin != entries[j].Builtin {
			return entries[i].Builtin
		}
		return entries[i].Id < entries[j].Id
	})
	return entries
}
