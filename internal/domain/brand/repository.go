package brand

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrBrandNotFound = errors.New("brand not found")

type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Brand, error)
	List(ctx context.Context, limit, offset int) ([]*Brand, error)
	Create(ctx context.Context, b *Brand) (uuid.UUID, error)
}
