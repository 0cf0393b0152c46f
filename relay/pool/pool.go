// Package pool maintains the in-memory view over the credential store:
// exclusion-aware random selection, usage bookkeeping and bulk import.
package pool

import (
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/fuchsia74/grok2api/common/logger"
	"github.com/fuchsia74/grok2api/common/random"
	"github.com/fuchsia74/grok2api/model"
)

// Store is the narrow contract the pool issues against the backing store.
// model.CredentialStore implements it over gorm; tests swap in memory fakes.
type Store interface {
	Get(id string) (*model.Credential, error)
	List() ([]*model.Credential, error)
	Insert(credential *model.Credential) error
	Update(id string, fields map[string]any) error
	Delete(id string) error
	DeleteAll() error
	Count(onlyActive bool) (int64, error)
}

type Pool struct {
	store Store

	// importBatchSize chunks bulk imports to bound single store writes.
	importBatchSize int
}

type Stats struct {
	Total  int64 `json:"total"`
	Active int64 `json:"active"`
}

func New(store Store, importBatchSize int) *Pool {
	if importBatchSize <= 0 {
		importBatchSize = 50
	}
	return &Pool{store: store, importBatchSize: importBatchSize}
}

// ListAll returns every credential, newest first.
func (p *Pool) ListAll() ([]*model.Credential, error) {
	return p.store.List()
}

// GetById looks a credential up without touching usage bookkeeping.
func (p *Pool) GetById(id string) (*model.Credential, error) {
	return p.store.Get(id)
}

// PickRandom selects uniformly among enabled credentials whose id is not in
// excludeIds, then records the use. A nil credential with nil error means the
// pool is exhausted, which callers must treat differently from a store error.
func (p *Pool) PickRandom(excludeIds map[string]bool) (*model.Credential, error) {
	credentials, err := p.store.List()
	if err != nil {
		return nil, errors.Wrap(err, "list credentials for pick")
	}

	candidates := make([]*model.Credential, 0, len(credentials))
	for _, credential := range credentials {
		if credential.Status != model.CredentialStatusEnabled {
			continue
		}
		if excludeIds[credential.Id] {
			continue
		}
		candidates = append(candidates, credential)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	picked := candidates[random.RandRange(0, len(candidates))]
	now := time.Now().Unix()
	if err := p.store.Update(picked.Id, map[string]any{
		"use_count":    picked.UseCount + 1,
		"last_used_at": now,
	}); err != nil {
		// Bookkeeping failure should not fail the generation request.
		logger.Logger.Warn("failed to record credential use",
			zap.String("credential_id", picked.Id),
			zap.Error(err))
	}
	picked.UseCount++
	picked.LastUsedAt = now
	return picked, nil
}

// Upsert inserts a credential keyed by its derived id, or merges non-empty
// incoming fields into the existing row. Existing values are never cleared by
// empty input.
func (p *Pool) Upsert(entry ImportEntry) (*model.Credential, error) {
	if entry.SSOToken == "" {
		return nil, errors.New("credential sso token is required")
	}
	id := model.CredentialId(entry.SSOToken)

	existing, err := p.store.Get(id)
	if err != nil {
		return nil, errors.Wrap(err, "look up credential for upsert")
	}
	if existing == nil {
		credential := &model.Credential{
			Id:          id,
			SSOToken:    entry.SSOToken,
			SSORWToken:  entry.SSORWToken,
			UserId:      entry.UserId,
			CFClearance: entry.CFClearance,
			Name:        entry.Name,
			Status:      model.CredentialStatusEnabled,
			CreatedTime: time.Now().Unix(),
		}
		if err := p.store.Insert(credential); err != nil {
			return nil, errors.Wrap(err, "insert credential")
		}
		return credential, nil
	}

	fields := map[string]any{}
	if entry.SSORWToken != "" {
		fields["sso_rw_token"] = entry.SSORWToken
	}
	if entry.UserId != "" {
		fields["user_id"] = entry.UserId
	}
	if entry.CFClearance != "" {
		fields["cf_clearance"] = entry.CFClearance
	}
	if entry.Name != "" {
		fields["name"] = entry.Name
	}
	if len(fields) > 0 {
		if err := p.store.Update(id, fields); err != nil {
			return nil, errors.Wrap(err, "merge credential fields")
		}
	}
	merged, err := p.store.Get(id)
	if err != nil {
		return nil, errors.Wrap(err, "reload credential after merge")
	}
	return merged, nil
}

// BulkUpsert applies entries in fixed-size batches and returns how many were
// applied. The first store failure aborts the remainder.
func (p *Pool) BulkUpsert(entries []ImportEntry) (int, error) {
	applied := 0
	for start := 0; start < len(entries); start += p.importBatchSize {
		end := min(start+p.importBatchSize, len(entries))
		for _, entry := range entries[start:end] {
			if _, err := p.Upsert(entry); err != nil {
				return applied, errors.Wrapf(err, "bulk upsert entry %d", applied)
			}
			applied++
		}
	}
	return applied, nil
}

// Delete removes a credential, reporting whether it existed.
func (p *Pool) Delete(id string) (bool, error) {
	err := p.store.Delete(id)
	if err != nil {
		if errors.Is(err, model.ErrCredentialNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (p *Pool) ClearAll() error {
	return p.store.DeleteAll()
}

func (p *Pool) SetNsfw(id string, enabled bool) error {
	return p.store.Update(id, map[string]any{"nsfw_enabled": enabled})
}

func (p *Pool) SetStatus(id string, status int) error {
	return p.store.Update(id, map[string]any{"status": status})
}

func (p *Pool) Stats() (Stats, error) {
	total, err := p.store.Count(false)
	if err != nil {
		return Stats{}, err
	}
	active, err := p.store.Count(true)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Total: total, Active: active}, nil
}
