package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/apiguard/internal/domain/brand"
	"go.uber.org/zap"
)

type BrandRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewBrandRepository(db *pgxpool.Pool, logger *zap.Logger) *BrandRepository {
	return &BrandRepository{
		db:     db,
		logger: logger.Named("BrandRepository"),
	}
}

var _ brand.Repository = (*BrandRepository)(nil)

func (r *BrandRepository) FindByID(ctx context.Context, id uuid.UUID) (*brand.Brand, error) {
	query := `
		SELECT id, name, domain, industry, metadata, created_at, updated_at
		FROM brands
		WHERE id = $1
	`
	var b brand.Brand
	err := r.db.QueryRow(ctx, query, id).Scan(
		&b.ID,
		&b.Name,
		&b.Domain,
		&b.Industry,
		&b.Metadata,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, brand.ErrBrandNotFound
		}
		r.logger.Error("Failed to find brand", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("db error finding brand: %w", err)
	}
	return &b, nil
}

func (r *BrandRepository) List(ctx context.Context, limit, offset int) ([]*brand.Brand, error) {
	query := `
		SELECT id, name, domain, industry, metadata, created_at, updated_at
		FROM brands
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list brands", zap.Error(err))
		return nil, fmt.Errorf("db error listing brands: %w", err)
	}
	defer rows.Close()

	var brands []*brand.Brand
	for rows.Next() {
		var b brand.Brand
		if err := rows.Scan(&b.ID, &b.Name, &b.Domain, &b.Industry, &b.Metadata, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("db error scanning brand row: %w", err)
		}
		brands = append(brands, &b)
	}
	return brands, rows.Err()
}

func (r *BrandRepository) Create(ctx context.Context, b *brand.Brand) (uuid.UUID, error) {
	query := `
		INSERT INTO brands (name, domain, industry, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var insertedID uuid.UUID
	err := r.db.QueryRow(ctx, query, b.Name, b.Domain, b.Industry, b.Metadata).Scan(&insertedID)
	if err != nil {
		r.logger.Error("Failed to create brand", zap.Error(err))
		return uuid.Nil, fmt.Errorf("db error creating brand: %w", err)
	}
	return insertedID, nil
}
