package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/apiguard/internal/domain/apikey"
	"go.uber.org/zap"
)

type APIKeyRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewAPIKeyRepository(db *pgxpool.Pool, logger *zap.Logger) *APIKeyRepository {
	return &APIKeyRepository{
		db:     db,
		logger: logger.Named("APIKeyRepository"),
	}
}

var _ apikey.Repository = (*APIKeyRepository)(nil)

const apiKeyColumns = `id, key_hash, prefix, name, description, principal_id, is_active,
		revoked_at, expires_at, allowed_ips, allowed_domains, tier, scopes,
		created_at, updated_at, last_used_at`

func (r *APIKeyRepository) scanKey(row pgx.Row) (*apikey.APIKey, error) {
	var (
		key            apikey.APIKey
		revokedAt      sql.NullTime
		expiresAt      sql.NullTime
		lastUsed       sql.NullTime
		allowedIPs     string
		allowedDomains string
		tier           string
		scopes         string
	)

	err := row.Scan(
		&key.ID,
		&key.KeyHash,
		&key.Prefix,
		&key.Name,
		&key.Description,
		&key.PrincipalID,
		&key.IsActive,
		&revokedAt,
		&expiresAt,
		&allowedIPs,
		&allowedDomains,
		&tier,
		&scopes,
		&key.CreatedAt,
		&key.UpdatedAt,
		&lastUsed,
	)
	if err != nil {
		return nil, err
	}

	if revokedAt.Valid {
		key.RevokedAt = &revokedAt.Time
	}
	if expiresAt.Valid {
		key.ExpiresAt = &expiresAt.Time
	}
	if lastUsed.Valid {
		key.LastUsedAt = &lastUsed.Time
	}

	key.AllowedIPs = decodeList(allowedIPs)
	key.AllowedDomains = decodeList(allowedDomains)
	key.Tier = apikey.Tier(tier)

	parsed, unknown := apikey.ParseScopes(scopes)
	if len(unknown) > 0 {
		r.logger.Warn("Dropping unknown scopes on key record",
			zap.String("key_id", key.ID.String()),
			zap.Strings("unknown_scopes", unknown),
		)
	}
	key.Scopes = parsed

	return &key, nil
}

func (r *APIKeyRepository) FindByHash(ctx context.Context, keyHash string) (*apikey.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE key_hash = $1`

	key, err := r.scanKey(r.db.QueryRow(ctx, query, keyHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apikey.ErrAPIKeyNotFound
		}
		r.logger.Error("Failed to find api key by hash", zap.Error(err))
		return nil, fmt.Errorf("db error finding api key: %w", err)
	}
	return key, nil
}

func (r *APIKeyRepository) FindByID(ctx context.Context, id uuid.UUID) (*apikey.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`

	key, err := r.scanKey(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apikey.ErrAPIKeyNotFound
		}
		r.logger.Error("Failed to find api key by id", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("db error finding api key: %w", err)
	}
	return key, nil
}

func (r *APIKeyRepository) ListByPrincipal(ctx context.Context, principalID uuid.UUID) ([]*apikey.APIKey, error) {
	query := `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE principal_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, principalID)
	if err != nil {
		r.logger.Error("Failed to list api keys", zap.String("principal_id", principalID.String()), zap.Error(err))
		return nil, fmt.Errorf("db error listing api keys: %w", err)
	}
	defer rows.Close()

	var keys []*apikey.APIKey
	for rows.Next() {
		key, err := r.scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("db error scanning api key row: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *APIKeyRepository) Create(ctx context.Context, key *apikey.APIKey) (uuid.UUID, error) {
	query := `
		INSERT INTO api_keys (key_hash, prefix, name, description, principal_id, is_active,
			expires_at, allowed_ips, allowed_domains, tier, scopes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`
	var insertedID uuid.UUID
	var expiresArg interface{}
	if key.ExpiresAt != nil {
		expiresArg = *key.ExpiresAt
	}

	err := r.db.QueryRow(ctx, query,
		key.KeyHash,
		key.Prefix,
		key.Name,
		key.Description,
		key.PrincipalID,
		key.IsActive,
		expiresArg,
		encodeList(key.AllowedIPs),
		encodeList(key.AllowedDomains),
		string(key.Tier),
		key.Scopes.Encode(),
	).Scan(&insertedID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.logger.Warn("Failed to create API key due to unique constraint violation",
				zap.String("constraint", pgErr.ConstraintName),
				zap.String("prefix", key.Prefix),
			)
			return uuid.Nil, fmt.Errorf("api key constraint violation (%s)", pgErr.ConstraintName)
		}
		r.logger.Error("Failed to create api key in database", zap.Error(err))
		return uuid.Nil, fmt.Errorf("db error creating api key: %w", err)
	}

	r.logger.Info("API key created successfully", zap.String("id", insertedID.String()), zap.String("prefix", key.Prefix))
	return insertedID, nil
}

func (r *APIKeyRepository) Update(ctx context.Context, key *apikey.APIKey) error {
	query := `
		UPDATE api_keys
		SET name = $1, description = $2, expires_at = $3, allowed_ips = $4,
			allowed_domains = $5, tier = $6, scopes = $7, is_active = $8, updated_at = now()
		WHERE id = $9 AND revoked_at IS NULL
	`
	var expiresArg interface{}
	if key.ExpiresAt != nil {
		expiresArg = *key.ExpiresAt
	}

	cmdTag, err := r.db.Exec(ctx, query,
		key.Name,
		key.Description,
		expiresArg,
		encodeList(key.AllowedIPs),
		encodeList(key.AllowedDomains),
		string(key.Tier),
		key.Scopes.Encode(),
		key.IsActive,
		key.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update api key", zap.String("id", key.ID.String()), zap.Error(err))
		return fmt.Errorf("db error updating api key: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apikey.ErrAPIKeyNotFound
	}
	return nil
}

func (r *APIKeyRepository) Revoke(ctx context.Context, id uuid.UUID, revokedAt time.Time) error {
	query := `UPDATE api_keys SET revoked_at = $1, is_active = FALSE, updated_at = now() WHERE id = $2 AND revoked_at IS NULL`
	cmdTag, err := r.db.Exec(ctx, query, revokedAt, id)
	if err != nil {
		r.logger.Error("Failed to revoke api key", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("db error revoking api key: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apikey.ErrAPIKeyNotFound
	}
	return nil
}

func (r *APIKeyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete api key", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("db error deleting api key: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apikey.ErrAPIKeyNotFound
	}
	return nil
}

func (r *APIKeyRepository) UpdateLastUsed(ctx context.Context, id uuid.UUID, lastUsed time.Time) error {
	query := `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`
	cmdTag, err := r.db.Exec(ctx, query, lastUsed, id)
	if err != nil {
		r.logger.Error("Failed to update api key last_used_at", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("db error updating last used time: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.Warn("API key not found when updating last_used_at", zap.String("id", id.String()))
	}
	return nil
}

// Lists are stored comma-separated; the slice form is the domain contract.
func encodeList(items []string) string {
	return strings.Join(items, ",")
}

func decodeList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
