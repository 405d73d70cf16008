package memstorage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/apiguard/internal/domain/apikey"
)

// APIKeyRepository is the in-memory key store used by tests and local runs.
type APIKeyRepository struct {
	mu   sync.RWMutex
	keys map[uuid.UUID]*apikey.APIKey
}

func NewAPIKeyRepository() *APIKeyRepository {
	return &APIKeyRepository{keys: make(map[uuid.UUID]*apikey.APIKey)}
}

var _ apikey.Repository = (*APIKeyRepository)(nil)

func (r *APIKeyRepository) FindByHash(ctx context.Context, keyHash string) (*apikey.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, k := range r.keys {
		if k.KeyHash == keyHash {
			cp := *k
			return &cp, nil
		}
	}
	return nil, apikey.ErrAPIKeyNotFound
}

func (r *APIKeyRepository) FindByID(ctx context.Context, id uuid.UUID) (*apikey.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.keys[id]
	if !ok {
		return nil, apikey.ErrAPIKeyNotFound
	}
	cp := *k
	return &cp, nil
}

func (r *APIKeyRepository) ListByPrincipal(ctx context.Context, principalID uuid.UUID) ([]*apikey.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*apikey.APIKey
	for _, k := range r.keys {
		if k.PrincipalID == principalID {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *APIKeyRepository) Create(ctx context.Context, key *apikey.APIKey) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	now := time.Now().UTC()
	key.CreatedAt = now
	key.UpdatedAt = now
	cp := *key
	r.keys[key.ID] = &cp
	return key.ID, nil
}

func (r *APIKeyRepository) Update(ctx context.Context, key *apikey.APIKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.keys[key.ID]
	if !ok || existing.RevokedAt != nil {
		return apikey.ErrAPIKeyNotFound
	}
	cp := *key
	cp.UpdatedAt = time.Now().UTC()
	r.keys[key.ID] = &cp
	return nil
}

func (r *APIKeyRepository) Revoke(ctx context.Context, id uuid.UUID, revokedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok || k.RevokedAt != nil {
		return apikey.ErrAPIKeyNotFound
	}
	k.RevokedAt = &revokedAt
	k.IsActive = false
	k.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *APIKeyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.keys[id]; !ok {
		return apikey.ErrAPIKeyNotFound
	}
	delete(r.keys, id)
	return nil
}

func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, id uuid.UUID, lastUsed time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if k, ok := r.keys[id]; ok {
		k.LastUsedAt = &lastUsed
	}
	return nil
}
