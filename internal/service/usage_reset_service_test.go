package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/apiguard/internal/domain/principal"
	"github.com/makkenzo/apiguard/internal/domain/usage"
	"github.com/makkenzo/apiguard/internal/storage/memstorage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type resetFixture struct {
	usageRepo     *memstorage.UsageRepository
	principalRepo *memstorage.PrincipalRepository
	service       *UsageResetService
	now           time.Time
}

func newResetFixture(t *testing.T, batchSize int) *resetFixture {
	t.Helper()
	usageRepo := memstorage.NewUsageRepository()
	principalRepo := memstorage.NewPrincipalRepository()
	return &resetFixture{
		usageRepo:     usageRepo,
		principalRepo: principalRepo,
		service:       NewUsageResetService(usageRepo, principalRepo, 1.1, batchSize, zap.NewNop()),
		now:           time.Date(2026, time.March, 3, 9, 0, 0, 0, time.UTC),
	}
}

// addStaleRecord seeds a usage record last reset in the prior month, owned
// by a freshly created principal, and returns the key id.
func (f *resetFixture) addStaleRecord(t *testing.T, plan principal.Plan) uuid.UUID {
	t.Helper()
	ownerID, err := f.principalRepo.Create(context.Background(), &principal.Principal{
		Name: "owner", Email: "owner@test", Plan: plan, IsActive: true,
	})
	require.NoError(t, err)

	keyID := uuid.New()
	f.usageRepo.Seed(&usage.MonthlyUsage{
		APIKeyID:      keyID,
		PrincipalID:   ownerID,
		Month:         "2026-02",
		TotalCalls:    8000,
		QuotaLimit:    10000,
		GraceLimit:    11000,
		LastResetDate: time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
	})
	return keyID
}

func TestResetRolledOverResetsStaleRecords(t *testing.T) {
	f := newResetFixture(t, 10)
	keyID := f.addStaleRecord(t, principal.PlanPro)

	summary, err := f.service.ResetRolledOver(context.Background(), f.now)
	require.NoError(t, err)

	assert.Equal(t, "2026-03", summary.Month)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
	assert.InDelta(t, 1.0, summary.SuccessRate, 1e-9)

	rec, err := f.usageRepo.FindByKeyAndMonth(context.Background(), keyID, "2026-03")
	require.NoError(t, err)
	assert.EqualValues(t, 0, rec.TotalCalls)
	assert.EqualValues(t, 10000, rec.QuotaLimit)
	assert.EqualValues(t, 11000, rec.GraceLimit)
	assert.Equal(t, usage.FirstOfMonth(f.now), rec.LastResetDate)
}

func TestResetRolledOverIsIdempotent(t *testing.T) {
	f := newResetFixture(t, 10)
	f.addStaleRecord(t, principal.PlanFree)

	first, err := f.service.ResetRolledOver(context.Background(), f.now)
	require.NoError(t, err)
	require.Equal(t, 1, first.Success)

	second, err := f.service.ResetRolledOver(context.Background(), f.now)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Total)
	assert.Equal(t, 0, second.Success)
}

func TestResetSkipsOrphanedRecords(t *testing.T) {
	f := newResetFixture(t, 10)
	healthy := f.addStaleRecord(t, principal.PlanFree)

	orphan := uuid.New()
	f.usageRepo.Seed(&usage.MonthlyUsage{
		APIKeyID:      orphan,
		PrincipalID:   uuid.New(), // no such principal
		Month:         "2026-02",
		LastResetDate: time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
	})

	summary, err := f.service.ResetRolledOver(context.Background(), f.now)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)

	// The healthy record was still rolled over despite the orphan.
	_, err = f.usageRepo.FindByKeyAndMonth(context.Background(), healthy, "2026-03")
	assert.NoError(t, err)
}

func TestResetIsolatesPerRecordFailures(t *testing.T) {
	f := newResetFixture(t, 10)
	healthy := f.addStaleRecord(t, principal.PlanFree)
	broken := f.addStaleRecord(t, principal.PlanFree)
	f.usageRepo.ResetErrFor[broken] = errors.New("write conflict")

	summary, err := f.service.ResetRolledOver(context.Background(), f.now)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 1, summary.Failed)
	assert.InDelta(t, 0.5, summary.SuccessRate, 1e-9)

	_, err = f.usageRepo.FindByKeyAndMonth(context.Background(), healthy, "2026-03")
	assert.NoError(t, err)
	_, err = f.usageRepo.FindByKeyAndMonth(context.Background(), broken, "2026-02")
	assert.NoError(t, err, "failed record keeps its stale month")
}

func TestResetPagesPastStuckRecords(t *testing.T) {
	// Batch size 2 with one perpetually failing record forces offset
	// advancement to reach the rest.
	f := newResetFixture(t, 2)
	ownerID, err := f.principalRepo.Create(context.Background(), &principal.Principal{
		Name: "owner", Email: "owner@test", Plan: principal.PlanFree, IsActive: true,
	})
	require.NoError(t, err)

	// Distinct reset dates keep the listing order stable across batches.
	var keys []uuid.UUID
	for i := 0; i < 5; i++ {
		keyID := uuid.New()
		keys = append(keys, keyID)
		f.usageRepo.Seed(&usage.MonthlyUsage{
			APIKeyID:      keyID,
			PrincipalID:   ownerID,
			Month:         "2026-02",
			LastResetDate: time.Date(2026, time.February, 1+i, 0, 0, 0, 0, time.UTC),
		})
	}
	f.usageRepo.ResetErrFor[keys[0]] = errors.New("write conflict")

	summary, err := f.service.ResetRolledOver(context.Background(), f.now)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Success)
	assert.Equal(t, 1, summary.Failed)
}

func TestResetSettlesStaleRowAfterKeyAlreadyCalledIn(t *testing.T) {
	// A key that calls in after rollover opens its current-month row
	// before the batch runs. The batch must still settle the stale row as
	// a success and must not touch the counters the new row accumulated.
	f := newResetFixture(t, 10)
	keyID := f.addStaleRecord(t, principal.PlanPro)

	stale, err := f.usageRepo.FindByKeyAndMonth(context.Background(), keyID, "2026-02")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, admitted, incErr := f.usageRepo.IncrementCall(context.Background(), &usage.MonthlyUsage{
			APIKeyID:      keyID,
			PrincipalID:   stale.PrincipalID,
			Month:         "2026-03",
			QuotaLimit:    10000,
			GraceLimit:    11000,
			LastResetDate: usage.FirstOfMonth(f.now),
		})
		require.NoError(t, incErr)
		require.True(t, admitted)
	}

	summary, err := f.service.ResetRolledOver(context.Background(), f.now)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Success)
	assert.Equal(t, 0, summary.Failed)

	current, err := f.usageRepo.FindByKeyAndMonth(context.Background(), keyID, "2026-03")
	require.NoError(t, err)
	assert.EqualValues(t, 3, current.TotalCalls, "calls made before the batch must survive it")

	history, err := f.usageRepo.FindByKeyAndMonth(context.Background(), keyID, "2026-02")
	require.NoError(t, err)
	assert.EqualValues(t, 8000, history.TotalCalls, "settled rows keep their counters")
	assert.Equal(t, usage.FirstOfMonth(f.now), history.LastResetDate)

	// And the settled row never comes back in later runs.
	again, err := f.service.ResetRolledOver(context.Background(), f.now)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Total)
}

func TestResetKeepsPriorMonthHistory(t *testing.T) {
	f := newResetFixture(t, 10)
	keyID := f.addStaleRecord(t, principal.PlanFree)

	_, err := f.service.ResetRolledOver(context.Background(), f.now)
	require.NoError(t, err)

	history, err := f.usageRepo.FindByKeyAndMonth(context.Background(), keyID, "2026-02")
	require.NoError(t, err)
	assert.EqualValues(t, 8000, history.TotalCalls)
	assert.Equal(t, "2026-02", history.Month)
}

func TestResetStopsOnContextCancellation(t *testing.T) {
	f := newResetFixture(t, 10)
	f.addStaleRecord(t, principal.PlanFree)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := f.service.ResetRolledOver(ctx, f.now)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
}
