package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/apiguard/internal/domain/apikey"
	"github.com/makkenzo/apiguard/internal/domain/principal"
	"github.com/makkenzo/apiguard/internal/domain/usage"
	"github.com/makkenzo/apiguard/internal/ierr"
	"github.com/makkenzo/apiguard/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newQuotaFixture(t *testing.T, plan principal.Plan) (*QuotaAccountant, *memstorage.UsageRepository, *apikey.APIKey) {
	t.Helper()

	usageRepo := memstorage.NewUsageRepository()
	principalRepo := memstorage.NewPrincipalRepository()

	owner := &principal.Principal{Name: "acme", Email: "ops@acme.test", Plan: plan, IsActive: true}
	ownerID, err := principalRepo.Create(context.Background(), owner)
	require.NoError(t, err)

	key := &apikey.APIKey{ID: uuid.New(), PrincipalID: ownerID, IsActive: true}

	accountant := NewQuotaAccountant(usageRepo, principalRepo, 1.1, zap.NewNop())
	return accountant, usageRepo, key
}

func seededUsage(key *apikey.APIKey, now time.Time, total, quota, grace int64) *usage.MonthlyUsage {
	return &usage.MonthlyUsage{
		APIKeyID:      key.ID,
		PrincipalID:   key.PrincipalID,
		Month:         usage.MonthOf(now),
		TotalCalls:    total,
		QuotaLimit:    quota,
		GraceLimit:    grace,
		LastResetDate: usage.FirstOfMonth(now),
	}
}

func TestCheckAndRecordLazilyCreatesRecord(t *testing.T) {
	accountant, _, key := newQuotaFixture(t, principal.PlanFree)
	now := time.Now().UTC()

	rec, err := accountant.CheckAndRecord(context.Background(), key, now)
	require.NoError(t, err)

	assert.EqualValues(t, 1, rec.TotalCalls)
	assert.EqualValues(t, 1000, rec.QuotaLimit)
	assert.EqualValues(t, 1100, rec.GraceLimit)
	assert.Equal(t, usage.MonthOf(now), rec.Month)
	assert.Equal(t, usage.FirstOfMonth(now), rec.LastResetDate)
}

func TestGraceZoneAdmitsAndFlags(t *testing.T) {
	accountant, usageRepo, key := newQuotaFixture(t, principal.PlanFree)
	now := time.Now().UTC()
	usageRepo.Seed(seededUsage(key, now, 105, 100, 110))

	rec, err := accountant.CheckAndRecord(context.Background(), key, now)
	require.NoError(t, err)

	assert.EqualValues(t, 106, rec.TotalCalls)
	assert.EqualValues(t, 1, rec.QuotaExceededCalls)
}

func TestOverGraceDenies(t *testing.T) {
	accountant, usageRepo, key := newQuotaFixture(t, principal.PlanFree)
	now := time.Now().UTC()
	usageRepo.Seed(seededUsage(key, now, 111, 100, 110))

	rec, err := accountant.CheckAndRecord(context.Background(), key, now)
	assert.True(t, errors.Is(err, ierr.ErrQuotaExceeded))
	assert.EqualValues(t, 111, rec.TotalCalls, "denied call must not be counted")
}

func TestGraceBoundaryExactly(t *testing.T) {
	accountant, usageRepo, key := newQuotaFixture(t, principal.PlanFree)
	now := time.Now().UTC()
	usageRepo.Seed(seededUsage(key, now, 109, 100, 110))

	// 109 -> 110 is the last admissible call.
	rec, err := accountant.CheckAndRecord(context.Background(), key, now)
	require.NoError(t, err)
	assert.EqualValues(t, 110, rec.TotalCalls)

	_, err = accountant.CheckAndRecord(context.Background(), key, now)
	assert.True(t, errors.Is(err, ierr.ErrQuotaExceeded))
}

func TestMissingPrincipalFailsClosed(t *testing.T) {
	accountant, _, key := newQuotaFixture(t, principal.PlanFree)
	key.PrincipalID = uuid.New() // nobody owns this

	_, err := accountant.CheckAndRecord(context.Background(), key, time.Now().UTC())
	assert.True(t, errors.Is(err, ierr.ErrStoreUnavailable))
}

func TestRecordOutcomeCounters(t *testing.T) {
	accountant, usageRepo, key := newQuotaFixture(t, principal.PlanFree)
	now := time.Now().UTC()
	month := usage.MonthOf(now)

	_, err := accountant.CheckAndRecord(context.Background(), key, now)
	require.NoError(t, err)

	require.NoError(t, accountant.RecordOutcome(context.Background(), key.ID, month, true))
	require.NoError(t, accountant.RecordOutcome(context.Background(), key.ID, month, false))

	rec, err := usageRepo.FindByKeyAndMonth(context.Background(), key.ID, month)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec.SuccessfulCalls)
	assert.EqualValues(t, 1, rec.FailedCalls)
}

func TestNewMonthKeepsPriorMonthRecord(t *testing.T) {
	// The first call of a new month opens a fresh row; the prior month's
	// row stays readable as history.
	accountant, usageRepo, key := newQuotaFixture(t, principal.PlanFree)
	february := time.Date(2026, time.February, 10, 12, 0, 0, 0, time.UTC)
	march := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	_, err := accountant.CheckAndRecord(context.Background(), key, february)
	require.NoError(t, err)

	rec, err := accountant.CheckAndRecord(context.Background(), key, march)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec.TotalCalls)

	history, err := usageRepo.FindByKeyAndMonth(context.Background(), key.ID, usage.MonthOf(february))
	require.NoError(t, err)
	assert.EqualValues(t, 1, history.TotalCalls)
}

func TestConcurrentCallsNeverExceedGrace(t *testing.T) {
	accountant, usageRepo, key := newQuotaFixture(t, principal.PlanFree)
	now := time.Now().UTC()
	usageRepo.Seed(seededUsage(key, now, 0, 10, 12))

	const attempts = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := accountant.CheckAndRecord(context.Background(), key, now); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 12, admitted, "admissions must stop exactly at the grace ceiling")

	rec, err := usageRepo.FindByKeyAndMonth(context.Background(), key.ID, usage.MonthOf(now))
	require.NoError(t, err)
	assert.EqualValues(t, 12, rec.TotalCalls)
}
