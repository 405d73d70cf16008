package principal

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrPrincipalNotFound = errors.New("principal not found")

type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Principal, error)
	Create(ctx context.Context, p *Principal) (uuid.UUID, error)
}
