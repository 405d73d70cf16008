package apikey

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrAPIKeyNotFound = errors.New("api key not found")

type Repository interface {
	FindByHash(ctx context.Context, keyHash string) (*APIKey, error)
	FindByID(ctx context.Context, id uuid.UUID) (*APIKey, error)
	ListByPrincipal(ctx context.Context, principalID uuid.UUID) ([]*APIKey, error)
	Create(ctx context.Context, key *APIKey) (uuid.UUID, error)
	Update(ctx context.Context, key *APIKey) error
	Revoke(ctx context.Context, id uuid.UUID, revokedAt time.Time) error
	Delete(ctx context.Context, id uuid.UUID) error
	UpdateLastUsed(ctx context.Context, id uuid.UUID, lastUsed time.Time) error
}
