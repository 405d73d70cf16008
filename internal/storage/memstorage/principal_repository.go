package memstorage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/apiguard/internal/domain/principal"
)

type PrincipalRepository struct {
	mu         sync.RWMutex
	principals map[uuid.UUID]*principal.Principal
}

func NewPrincipalRepository() *PrincipalRepository {
	return &PrincipalRepository{principals: make(map[uuid.UUID]*principal.Principal)}
}

var _ principal.Repository = (*PrincipalRepository)(nil)

func (r *PrincipalRepository) FindByID(ctx context.Context, id uuid.UUID) (*principal.Principal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.principals[id]
	if !ok {
		return nil, principal.ErrPrincipalNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *PrincipalRepository) Create(ctx context.Context, p *principal.Principal) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	cp := *p
	r.principals[p.ID] = &cp
	return p.ID, nil
}
