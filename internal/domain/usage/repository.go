package usage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrUsageNotFound = errors.New("usage record not found")

type Repository interface {
	// IncrementCall atomically increments total_calls for (seed.APIKeyID,
	// seed.Month), creating the row from the seed when absent. The
	// increment must not apply once total_calls has reached the grace
	// limit; admitted is false in that case. The returned record reflects
	// the row after the attempt. Implementations must be safe against
	// concurrent callers on the same key: no lost-update over-admission.
	IncrementCall(ctx context.Context, seed *MonthlyUsage) (rec *MonthlyUsage, admitted bool, err error)

	// RecordOutcome increments successful_calls or failed_calls for an
	// already-counted call. Best-effort: absence of the row is not an
	// error.
	RecordOutcome(ctx context.Context, apiKeyID uuid.UUID, month string, success bool) error

	FindByKeyAndMonth(ctx context.Context, apiKeyID uuid.UUID, month string) (*MonthlyUsage, error)

	// ListNeedingReset pages through rows whose last_reset_date predates
	// the given first-of-month boundary.
	ListNeedingReset(ctx context.Context, before time.Time, limit, offset int) ([]*MonthlyUsage, error)

	// Reset settles the given stale row and opens the target month: the
	// stale row keeps its month and counters as history but has its
	// last_reset_date advanced to resetDate, and a zeroed row for month
	// with the recomputed limits is created unless the key already opened
	// it by calling in. The settle predicate must exclude rows already at
	// resetDate so re-runs are no-ops.
	Reset(ctx context.Context, rec *MonthlyUsage, month string, quotaLimit, graceLimit int64, resetDate time.Time) (bool, error)
}
