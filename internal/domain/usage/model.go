package usage

import (
	"time"

	"github.com/google/uuid"
)

// MonthlyUsage is one row per (key, calendar month). Counters only grow
// within a month; rows for past months are kept as history. The reset job
// settles stale rows and opens the current month with limits recomputed
// from the owning principal's plan.
type MonthlyUsage struct {
	APIKeyID           uuid.UUID `db:"api_key_id"`
	PrincipalID        uuid.UUID `db:"principal_id"`
	Month              string    `db:"month"`
	TotalCalls         int64     `db:"total_calls"`
	SuccessfulCalls    int64     `db:"successful_calls"`
	FailedCalls        int64     `db:"failed_calls"`
	QuotaExceededCalls int64     `db:"quota_exceeded_calls"`
	QuotaLimit         int64     `db:"quota_limit"`
	GraceLimit         int64     `db:"grace_limit"`
	LastResetDate      time.Time `db:"last_reset_date"`
	UpdatedAt          time.Time `db:"updated_at"`
}

// MonthOf formats the calendar-month identifier for a point in time.
func MonthOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// FirstOfMonth truncates a point in time to the first day of its month.
func FirstOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// OverQuota reports whether the row has passed its hard limit (grace zone
// or beyond).
func (u *MonthlyUsage) OverQuota() bool {
	return u.TotalCalls > u.QuotaLimit
}
