package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/fuchsia74/grok2api/common/logger"
)

// SyncOptions parameterizes one catalog refresh.
type SyncOptions struct {
	APIKey  string
	BaseURL string
	TTL     time.Duration
	Force   bool
}

// SyncResult reports the state of the remote catalog after a sync call.
type SyncResult struct {
	OK        bool      `json:"ok"`
	FromCache bool      `json:"from_cache"`
	Ids       []string  `json:"ids"`
	UpdatedAt time.Time `json:"updated_at"`
	Error     string    `json:"error,omitempty"`
	Status    int       `json:"status,omitempty"`
}

const freshnessKey = "remote_model_ids"

// remoteCatalog holds the process-wide remote id list. The go-cache entry is
// only the freshness marker; the id list itself survives TTL expiry so stale
// ids keep resolving until a refresh succeeds.
type remoteCatalog struct {
	client *http.Client
	now    func() time.Time
	fresh  *gocache.Cache
	group  singleflight.Group

	mu         sync.Mutex
	idList     []string
	fetchedAt  time.Time
	lastError  string
	lastStatus int
}

func newRemoteCatalog(client *http.Client, now func() time.Time) *remoteCatalog {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if now == nil {
		now = time.Now
	}
	return &remoteCatalog{
		client: client,
		now:    now,
		fresh:  gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func (rc *remoteCatalog) ids() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]string, len(rc.idList))
	copy(out, rc.idList)
	return out
}

func (rc *remoteCatalog) state(fromCache bool) SyncResult {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	ids := make([]string, len(rc.idList))
	copy(ids, rc.idList)
	return SyncResult{
		OK:        rc.lastError == "",
		FromCache: fromCache,
		Ids:       ids,
		UpdatedAt: rc.fetchedAt,
		Error:     rc.lastError,
		Status:    rc.lastStatus,
	}
}

type remoteModelList struct {
	Data []struct {
		Id string `json:"id"`
	} `json:"data"`
}

// sync refreshes the id list unless the cached copy is still fresh. Failures
// keep the previous list and only record the error and status.
func (rc *remoteCatalog) sync(ctx context.Context, opts SyncOptions) SyncResult {
	if !opts.Force {
		if _, fresh := rc.fresh.Get(freshnessKey); fresh {
			return rc.state(true)
		}
	}

	// Concurrent refreshes collapse into one upstream fetch.
	result, _, _ := rc.group.Do(freshnessKey, func() (any, error) {
		return rc.refresh(ctx, opts), nil
	})
	return result.(SyncResult)
}

func (rc *remoteCatalog) refresh(ctx context.Context, opts SyncOptions) SyncResult {
	if opts.APIKey == "" {
		rc.mu.Lock()
		rc.lastError = "catalog api key not configured"
		rc.lastStatus = 0
		rc.mu.Unlock()
		return rc.state(false)
	}

	ids, status, err := rc.fetch(ctx, opts)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.lastStatus = status
	if err != nil {
		rc.lastError = err.Error()
		logger.Logger.Warn("remote catalog sync failed",
			zap.Int("status", status),
			zap.Error(err))
		return SyncResult{FromCache: false, Ids: append([]string(nil), rc.idList...),
			UpdatedAt: rc.fetchedAt, Error: rc.lastError, Status: status}
	}

	rc.lastError = ""
	rc.idList = ids
	rc.fetchedAt = rc.now()
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	rc.fresh.Set(freshnessKey, rc.fetchedAt, ttl)
	logger.Logger.Info("remote catalog synced", zap.Int("models", len(ids)))
	return SyncResult{OK: true, Ids: append([]string(nil), ids...), UpdatedAt: rc.fetchedAt, Status: status}
}

func (rc *remoteCatalog) fetch(ctx context.Context, opts SyncOptions) ([]string, int, error) {
	url := strings.TrimRight(opts.BaseURL, "/") + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, errors.Wrap(err, "build catalog request")
	}
	req.Header.Set("Authorization", "Bearer "+opts.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := rc.client.Do(req)
	if err != nil {
		return nil, 0, errors.Wrap(err, "fetch remote catalog")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resp.StatusCode, errors.Errorf("catalog listing returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var list remoteModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, resp.StatusCode, errors.Wrap(err, "decode catalog listing")
	}

	seen := map[string]bool{}
	ids := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		id := strings.TrimSpace(m.Id)
		if id == "" || seen[strings.ToLower(id)] {
			continue
		}
		seen[strings.ToLower(id)] = true
		ids = append(ids, id)
	}
	return ids, resp.StatusCode, nil
}
