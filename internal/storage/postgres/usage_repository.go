package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/makkenzo/apiguard/internal/domain/usage"
	"go.uber.org/zap"
)

type UsageRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewUsageRepository(db *pgxpool.Pool, logger *zap.Logger) *UsageRepository {
	return &UsageRepository{
		db:     db,
		logger: logger.Named("UsageRepository"),
	}
}

var _ usage.Repository = (*UsageRepository)(nil)

// IncrementCall is a single conditional upsert so that concurrent calls on
// the same key serialize inside Postgres. The guard predicate stops the
// counter at the grace ceiling; an unguarded read-then-write here would
// over-admit under concurrency.
func (r *UsageRepository) IncrementCall(ctx context.Context, seed *usage.MonthlyUsage) (*usage.MonthlyUsage, bool, error) {
	query := `
		INSERT INTO monthly_usage (api_key_id, principal_id, month, total_calls,
			successful_calls, failed_calls, quota_exceeded_calls,
			quota_limit, grace_limit, last_reset_date)
		VALUES ($1, $2, $3, 1, 0, 0, 0, $4, $5, $6)
		ON CONFLICT (api_key_id, month) DO UPDATE SET
			total_calls = monthly_usage.total_calls + 1,
			quota_exceeded_calls = monthly_usage.quota_exceeded_calls +
				CASE WHEN monthly_usage.total_calls + 1 > monthly_usage.quota_limit THEN 1 ELSE 0 END,
			updated_at = now()
		WHERE monthly_usage.total_calls < monthly_usage.grace_limit
		RETURNING api_key_id, principal_id, month, total_calls, successful_calls,
			failed_calls, quota_exceeded_calls, quota_limit, grace_limit, last_reset_date, updated_at
	`

	rec, err := r.scanUsage(r.db.QueryRow(ctx, query,
		seed.APIKeyID,
		seed.PrincipalID,
		seed.Month,
		seed.QuotaLimit,
		seed.GraceLimit,
		seed.LastResetDate,
	))
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.Error("Failed to increment monthly usage",
			zap.String("api_key_id", seed.APIKeyID.String()),
			zap.String("month", seed.Month),
			zap.Error(err),
		)
		return nil, false, fmt.Errorf("db error incrementing usage: %w", err)
	}

	// Guard predicate blocked the increment: the key is over its grace
	// ceiling. Return the untouched row for response metadata.
	rec, err = r.FindByKeyAndMonth(ctx, seed.APIKeyID, seed.Month)
	if err != nil {
		return nil, false, err
	}
	return rec, false, nil
}

func (r *UsageRepository) RecordOutcome(ctx context.Context, apiKeyID uuid.UUID, month string, success bool) error {
	column := "failed_calls"
	if success {
		column = "successful_calls"
	}
	query := fmt.Sprintf(
		`UPDATE monthly_usage SET %s = %s + 1, updated_at = now() WHERE api_key_id = $1 AND month = $2`,
		column, column,
	)
	_, err := r.db.Exec(ctx, query, apiKeyID, month)
	if err != nil {
		r.logger.Error("Failed to record call outcome",
			zap.String("api_key_id", apiKeyID.String()),
			zap.String("month", month),
			zap.Bool("success", success),
			zap.Error(err),
		)
		return fmt.Errorf("db error recording call outcome: %w", err)
	}
	return nil
}

func (r *UsageRepository) FindByKeyAndMonth(ctx context.Context, apiKeyID uuid.UUID, month string) (*usage.MonthlyUsage, error) {
	query := `
		SELECT api_key_id, principal_id, month, total_calls, successful_calls,
			failed_calls, quota_exceeded_calls, quota_limit, grace_limit, last_reset_date, updated_at
		FROM monthly_usage
		WHERE api_key_id = $1 AND month = $2
	`
	rec, err := r.scanUsage(r.db.QueryRow(ctx, query, apiKeyID, month))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, usage.ErrUsageNotFound
		}
		r.logger.Error("Failed to find monthly usage", zap.String("api_key_id", apiKeyID.String()), zap.Error(err))
		return nil, fmt.Errorf("db error finding usage record: %w", err)
	}
	return rec, nil
}

func (r *UsageRepository) ListNeedingReset(ctx context.Context, before time.Time, limit, offset int) ([]*usage.MonthlyUsage, error) {
	query := `
		SELECT api_key_id, principal_id, month, total_calls, successful_calls,
			failed_calls, quota_exceeded_calls, quota_limit, grace_limit, last_reset_date, updated_at
		FROM monthly_usage
		WHERE last_reset_date < $1
		ORDER BY last_reset_date ASC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.Query(ctx, query, before, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list usage records needing reset", zap.Error(err))
		return nil, fmt.Errorf("db error listing usage records: %w", err)
	}
	defer rows.Close()

	var records []*usage.MonthlyUsage
	for rows.Next() {
		rec, err := r.scanUsage(rows)
		if err != nil {
			return nil, fmt.Errorf("db error scanning usage row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Reset settles one stale row and opens the target month. The stale row is
// addressed by its full (api_key_id, month) key and keeps its counters as
// history; only its last_reset_date advances, which drops it out of the
// ListNeedingReset predicate. The target-month row is inserted zeroed with
// the recomputed limits unless the key already opened it by calling in, in
// which case its counters stand. Both steps run in one transaction; the
// last_reset_date predicate makes re-runs no-ops.
func (r *UsageRepository) Reset(ctx context.Context, rec *usage.MonthlyUsage, month string, quotaLimit, graceLimit int64, resetDate time.Time) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("db error starting reset transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	settle := `
		UPDATE monthly_usage
		SET last_reset_date = $3, updated_at = now()
		WHERE api_key_id = $1 AND month = $2 AND last_reset_date < $3
	`
	cmdTag, err := tx.Exec(ctx, settle, rec.APIKeyID, rec.Month, resetDate)
	if err != nil {
		r.logger.Error("Failed to settle stale monthly usage",
			zap.String("api_key_id", rec.APIKeyID.String()),
			zap.String("month", rec.Month),
			zap.Error(err),
		)
		return false, fmt.Errorf("db error settling usage record: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return false, nil
	}

	open := `
		INSERT INTO monthly_usage (api_key_id, principal_id, month, total_calls,
			successful_calls, failed_calls, quota_exceeded_calls,
			quota_limit, grace_limit, last_reset_date)
		VALUES ($1, $2, $3, 0, 0, 0, 0, $4, $5, $6)
		ON CONFLICT (api_key_id, month) DO NOTHING
	`
	if _, err := tx.Exec(ctx, open, rec.APIKeyID, rec.PrincipalID, month, quotaLimit, graceLimit, resetDate); err != nil {
		r.logger.Error("Failed to open current-month usage row",
			zap.String("api_key_id", rec.APIKeyID.String()),
			zap.String("month", month),
			zap.Error(err),
		)
		return false, fmt.Errorf("db error opening usage record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("db error committing usage reset: %w", err)
	}
	return true, nil
}

func (r *UsageRepository) scanUsage(row pgx.Row) (*usage.MonthlyUsage, error) {
	var rec usage.MonthlyUsage
	err := row.Scan(
		&rec.APIKeyID,
		&rec.PrincipalID,
		&rec.Month,
		&rec.TotalCalls,
		&rec.SuccessfulCalls,
		&rec.FailedCalls,
		&rec.QuotaExceededCalls,
		&rec.QuotaLimit,
		&rec.GraceLimit,
		&rec.LastResetDate,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
