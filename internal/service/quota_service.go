package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/apiguard/internal/domain/apikey"
	"github.com/makkenzo/apiguard/internal/domain/principal"
	"github.com/makkenzo/apiguard/internal/domain/usage"
	"github.com/makkenzo/apiguard/internal/ierr"
	"go.uber.org/zap"
)

// QuotaAccountant tracks calendar-month call totals against the plan-derived
// hard limit plus grace ceiling. Calls between the two are admitted but
// counted as quota-exceeded; calls beyond the grace ceiling are denied.
type QuotaAccountant struct {
	usageRepo     usage.Repository
	principalRepo principal.Repository
	graceFactor   float64
	logger        *zap.Logger
}

func NewQuotaAccountant(usageRepo usage.Repository, principalRepo principal.Repository, graceFactor float64, logger *zap.Logger) *QuotaAccountant {
	return &QuotaAccountant{
		usageRepo:     usageRepo,
		principalRepo: principalRepo,
		graceFactor:   graceFactor,
		logger:        logger.Named("QuotaAccountant"),
	}
}

// CheckAndRecord counts one call against the key's monthly record, lazily
// creating the record on the first call of a new month with limits from the
// owner's current plan. The increment itself is atomic in the repository.
func (a *QuotaAccountant) CheckAndRecord(ctx context.Context, key *apikey.APIKey, now time.Time) (*usage.MonthlyUsage, error) {
	month := usage.MonthOf(now)

	seed := &usage.MonthlyUsage{
		APIKeyID:      key.ID,
		PrincipalID:   key.PrincipalID,
		Month:         month,
		LastResetDate: usage.FirstOfMonth(now),
	}

	existing, err := a.usageRepo.FindByKeyAndMonth(ctx, key.ID, month)
	switch {
	case err == nil:
		seed.QuotaLimit = existing.QuotaLimit
		seed.GraceLimit = existing.GraceLimit
	case errors.Is(err, usage.ErrUsageNotFound):
		owner, perr := a.principalRepo.FindByID(ctx, key.PrincipalID)
		if perr != nil {
			a.logger.Error("Failed to resolve owning principal for quota seed",
				zap.String("key_id", key.ID.String()),
				zap.String("principal_id", key.PrincipalID.String()),
				zap.Error(perr),
			)
			return nil, fmt.Errorf("%w: resolving principal: %v", ierr.ErrStoreUnavailable, perr)
		}
		seed.QuotaLimit = owner.Plan.MonthlyQuota()
		seed.GraceLimit = owner.Plan.GraceLimit(a.graceFactor)
	default:
		return nil, fmt.Errorf("%w: reading usage record: %v", ierr.ErrStoreUnavailable, err)
	}

	rec, admitted, err := a.usageRepo.IncrementCall(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("%w: counting call: %v", ierr.ErrStoreUnavailable, err)
	}
	if !admitted {
		a.logger.Warn("Monthly quota grace ceiling reached",
			zap.String("key_id", key.ID.String()),
			zap.Int64("total_calls", rec.TotalCalls),
			zap.Int64("grace_limit", rec.GraceLimit),
		)
		return rec, ierr.ErrQuotaExceeded
	}

	if rec.OverQuota() {
		a.logger.Info("Call admitted in grace zone above hard quota",
			zap.String("key_id", key.ID.String()),
			zap.Int64("total_calls", rec.TotalCalls),
			zap.Int64("quota_limit", rec.QuotaLimit),
		)
	}

	return rec, nil
}

// RecordOutcome attributes the downstream result of an already-counted
// call. Best-effort; callers fire it asynchronously.
func (a *QuotaAccountant) RecordOutcome(ctx context.Context, apiKeyID uuid.UUID, month string, success bool) error {
	return a.usageRepo.RecordOutcome(ctx, apiKeyID, month, success)
}

// MonthlyUsage returns the record for a key and month, for the admin
// summary endpoint.
func (a *QuotaAccountant) MonthlyUsage(ctx context.Context, apiKeyID uuid.UUID, month string) (*usage.MonthlyUsage, error) {
	rec, err := a.usageRepo.FindByKeyAndMonth(ctx, apiKeyID, month)
	if err != nil {
		if errors.Is(err, usage.ErrUsageNotFound) {
			return nil, fmt.Errorf("%w: no usage for month %s", ierr.ErrNotFound, month)
		}
		return nil, err
	}
	return rec, nil
}
