package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/makkenzo/apiguard/internal/domain/brand"
	"go.uber.org/zap"
)

type BrandService struct {
	repo   brand.Repository
	logger *zap.Logger
}

func NewBrandService(repo brand.Repository, logger *zap.Logger) *BrandService {
	return &BrandService{
		repo:   repo,
		logger: logger.Named("BrandService"),
	}
}

func (s *BrandService) List(ctx context.Context, limit, offset int) ([]*brand.Brand, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

func (s *BrandService) GetByID(ctx context.Context, id uuid.UUID) (*brand.Brand, error) {
	return s.repo.FindByID(ctx, id)
}
