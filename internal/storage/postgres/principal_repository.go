package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/apiguard/internal/domain/principal"
	"go.uber.org/zap"
)

type PrincipalRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPrincipalRepository(db *pgxpool.Pool, logger *zap.Logger) *PrincipalRepository {
	return &PrincipalRepository{
		db:     db,
		logger: logger.Named("PrincipalRepository"),
	}
}

var _ principal.Repository = (*PrincipalRepository)(nil)

func (r *PrincipalRepository) FindByID(ctx context.Context, id uuid.UUID) (*principal.Principal, error) {
	query := `
		SELECT id, name, email, plan, is_active, created_at, updated_at
		FROM principals
		WHERE id = $1
	`
	var p principal.Principal
	var plan string

	err := r.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&plan,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, principal.ErrPrincipalNotFound
		}
		r.logger.Error("Failed to find principal", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("db error finding principal: %w", err)
	}

	p.Plan = principal.Plan(plan)
	return &p, nil
}

func (r *PrincipalRepository) Create(ctx context.Context, p *principal.Principal) (uuid.UUID, error) {
	query := `
		INSERT INTO principals (name, email, plan, is_active)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	var insertedID uuid.UUID
	err := r.db.QueryRow(ctx, query, p.Name, p.Email, string(p.Plan), p.IsActive).Scan(&insertedID)
	if err != nil {
		r.logger.Error("Failed to create principal", zap.Error(err))
		return uuid.Nil, fmt.Errorf("db error creating principal: %w", err)
	}
	return insertedID, nil
}
