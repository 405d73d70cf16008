package service

import (
	"context"
	"errors"
	"time"

	"github.com/makkenzo/apiguard/internal/domain/principal"
	"github.com/makkenzo/apiguard/internal/domain/usage"
	"github.com/makkenzo/apiguard/internal/metrics"
	"go.uber.org/zap"
)

// ResetSummary is the outcome of one monthly reset batch. It is both the
// health signal logged after scheduled runs and the response body of the
// manual trigger endpoint.
type ResetSummary struct {
	Month       string  `json:"month"`
	Total       int     `json:"total_processed"`
	Success     int     `json:"success_count"`
	Failed      int     `json:"failure_count"`
	Skipped     int     `json:"skipped_count"`
	SuccessRate float64 `json:"success_rate"`
}

// UsageResetService settles monthly usage records left behind by month
// rollover and opens the current month with limits recomputed from each
// owner's current plan. Settled rows keep their counters as per-month
// history. Every record is handled independently: a failure or an orphaned
// row is tallied and the batch continues.
type UsageResetService struct {
	usageRepo     usage.Repository
	principalRepo principal.Repository
	graceFactor   float64
	batchSize     int
	logger        *zap.Logger
}

func NewUsageResetService(usageRepo usage.Repository, principalRepo principal.Repository, graceFactor float64, batchSize int, logger *zap.Logger) *UsageResetService {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &UsageResetService{
		usageRepo:     usageRepo,
		principalRepo: principalRepo,
		graceFactor:   graceFactor,
		batchSize:     batchSize,
		logger:        logger.Named("UsageResetService"),
	}
}

// ResetRolledOver processes every usage record whose last reset predates
// the first day of the month containing now. Re-running it in the same
// month is a no-op for already-reset records: they no longer match the
// predicate.
func (s *UsageResetService) ResetRolledOver(ctx context.Context, now time.Time) (*ResetSummary, error) {
	firstOfMonth := usage.FirstOfMonth(now)
	month := usage.MonthOf(now)

	summary := &ResetSummary{Month: month}

	// Successfully reset records drop out of the ListNeedingReset
	// predicate, so the offset only advances past records that stayed
	// behind (failures, orphans).
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("Monthly reset batch interrupted", zap.Error(err))
			break
		}

		records, err := s.usageRepo.ListNeedingReset(ctx, firstOfMonth, s.batchSize, offset)
		if err != nil {
			s.logger.Error("Failed to list usage records needing reset", zap.Error(err))
			return summary, err
		}
		if len(records) == 0 {
			break
		}

		resetInBatch := 0
		for _, rec := range records {
			summary.Total++
			switch s.resetOne(ctx, rec, month, firstOfMonth) {
			case resetSuccess:
				summary.Success++
				resetInBatch++
				metrics.UsageResetRecords.WithLabelValues("success").Inc()
			case resetSkipped:
				summary.Skipped++
				metrics.UsageResetRecords.WithLabelValues("skipped").Inc()
			case resetFailed:
				summary.Failed++
				metrics.UsageResetRecords.WithLabelValues("failure").Inc()
			case resetNoop:
				// Raced with another run; nothing to tally.
			}
		}

		if len(records) < s.batchSize {
			break
		}
		offset += len(records) - resetInBatch
	}

	if summary.Total > 0 {
		summary.SuccessRate = float64(summary.Success) / float64(summary.Total)
	}
	metrics.UsageResetLastRun.SetToCurrentTime()

	s.logger.Info("Monthly usage reset finished",
		zap.String("month", summary.Month),
		zap.Int("total", summary.Total),
		zap.Int("success", summary.Success),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Float64("success_rate", summary.SuccessRate),
	)

	return summary, nil
}

type resetResult int

const (
	resetSuccess resetResult = iota
	resetSkipped
	resetFailed
	resetNoop
)

func (s *UsageResetService) resetOne(ctx context.Context, rec *usage.MonthlyUsage, month string, firstOfMonth time.Time) resetResult {
	owner, err := s.principalRepo.FindByID(ctx, rec.PrincipalID)
	if err != nil {
		if errors.Is(err, principal.ErrPrincipalNotFound) {
			s.logger.Warn("Skipping usage record with missing principal",
				zap.String("api_key_id", rec.APIKeyID.String()),
				zap.String("principal_id", rec.PrincipalID.String()),
			)
			return resetSkipped
		}
		s.logger.Error("Failed to look up principal for usage reset",
			zap.String("api_key_id", rec.APIKeyID.String()),
			zap.Error(err),
		)
		return resetFailed
	}

	quotaLimit := owner.Plan.MonthlyQuota()
	graceLimit := owner.Plan.GraceLimit(s.graceFactor)

	ok, err := s.usageRepo.Reset(ctx, rec, month, quotaLimit, graceLimit, firstOfMonth)
	if err != nil {
		s.logger.Error("Failed to reset usage record",
			zap.String("api_key_id", rec.APIKeyID.String()),
			zap.String("month", month),
			zap.Error(err),
		)
		return resetFailed
	}
	if !ok {
		return resetNoop
	}

	return resetSuccess
}
