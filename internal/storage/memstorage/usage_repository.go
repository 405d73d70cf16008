package memstorage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/apiguard/internal/domain/usage"
)

type usageKey struct {
	keyID uuid.UUID
	month string
}

// UsageRepository mirrors the Postgres implementation's contracts under a
// single mutex: rows keyed by (api_key_id, month) so month rollover keeps
// prior months as history, and the same increment atomicity so concurrency
// tests exercise the same guarantees.
type UsageRepository struct {
	mu      sync.Mutex
	records map[usageKey]*usage.MonthlyUsage

	// ResetErrFor injects a persistence failure for specific keys so
	// batch-isolation behavior can be tested.
	ResetErrFor map[uuid.UUID]error
}

func NewUsageRepository() *UsageRepository {
	return &UsageRepository{
		records:     make(map[usageKey]*usage.MonthlyUsage),
		ResetErrFor: make(map[uuid.UUID]error),
	}
}

var _ usage.Repository = (*UsageRepository)(nil)

func (r *UsageRepository) IncrementCall(ctx context.Context, seed *usage.MonthlyUsage) (*usage.MonthlyUsage, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := usageKey{keyID: seed.APIKeyID, month: seed.Month}
	rec, ok := r.records[k]
	if !ok {
		cp := *seed
		cp.TotalCalls = 1
		cp.SuccessfulCalls = 0
		cp.FailedCalls = 0
		cp.QuotaExceededCalls = 0
		cp.UpdatedAt = time.Now().UTC()
		r.records[k] = &cp
		out := cp
		return &out, true, nil
	}

	if rec.TotalCalls >= rec.GraceLimit {
		out := *rec
		return &out, false, nil
	}

	rec.TotalCalls++
	if rec.TotalCalls > rec.QuotaLimit {
		rec.QuotaExceededCalls++
	}
	rec.UpdatedAt = time.Now().UTC()
	out := *rec
	return &out, true, nil
}

func (r *UsageRepository) RecordOutcome(ctx context.Context, apiKeyID uuid.UUID, month string, success bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[usageKey{keyID: apiKeyID, month: month}]
	if !ok {
		return nil
	}
	if success {
		rec.SuccessfulCalls++
	} else {
		rec.FailedCalls++
	}
	return nil
}

func (r *UsageRepository) FindByKeyAndMonth(ctx context.Context, apiKeyID uuid.UUID, month string) (*usage.MonthlyUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[usageKey{keyID: apiKeyID, month: month}]
	if !ok {
		return nil, usage.ErrUsageNotFound
	}
	out := *rec
	return &out, nil
}

func (r *UsageRepository) ListNeedingReset(ctx context.Context, before time.Time, limit, offset int) ([]*usage.MonthlyUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []*usage.MonthlyUsage
	for _, rec := range r.records {
		if rec.LastResetDate.Before(before) {
			cp := *rec
			stale = append(stale, &cp)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		if !stale[i].LastResetDate.Equal(stale[j].LastResetDate) {
			return stale[i].LastResetDate.Before(stale[j].LastResetDate)
		}
		return stale[i].APIKeyID.String() < stale[j].APIKeyID.String()
	})

	if offset >= len(stale) {
		return nil, nil
	}
	stale = stale[offset:]
	if limit < len(stale) {
		stale = stale[:limit]
	}
	return stale, nil
}

func (r *UsageRepository) Reset(ctx context.Context, rec *usage.MonthlyUsage, month string, quotaLimit, graceLimit int64, resetDate time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err, ok := r.ResetErrFor[rec.APIKeyID]; ok {
		return false, err
	}

	stale, ok := r.records[usageKey{keyID: rec.APIKeyID, month: rec.Month}]
	if !ok || !stale.LastResetDate.Before(resetDate) {
		return false, nil
	}

	// Settle the stale row in place; its month and counters stay as
	// history.
	stale.LastResetDate = resetDate
	stale.UpdatedAt = time.Now().UTC()

	// Open the target month with fresh limits unless a call already did.
	openKey := usageKey{keyID: rec.APIKeyID, month: month}
	if _, exists := r.records[openKey]; !exists {
		r.records[openKey] = &usage.MonthlyUsage{
			APIKeyID:      rec.APIKeyID,
			PrincipalID:   rec.PrincipalID,
			Month:         month,
			QuotaLimit:    quotaLimit,
			GraceLimit:    graceLimit,
			LastResetDate: resetDate,
			UpdatedAt:     time.Now().UTC(),
		}
	}
	return true, nil
}

// Seed installs a record directly, for tests.
func (r *UsageRepository) Seed(rec *usage.MonthlyUsage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records[usageKey{keyID: rec.APIKeyID, month: rec.Month}] = &cp
}
