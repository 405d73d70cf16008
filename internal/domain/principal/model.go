package principal

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Plan is the billing class of a principal. It drives the monthly quota,
// not the short-horizon rate-limit tier of individual keys.
type Plan string

const (
	PlanFree     Plan = "FREE"
	PlanPro      Plan = "PRO"
	PlanBusiness Plan = "BUSINESS"
)

var planQuotas = map[Plan]int64{
	PlanFree:     1000,
	PlanPro:      10000,
	PlanBusiness: 100000,
}

// MonthlyQuota returns the hard monthly call limit for the plan. Unknown
// plans fall back to FREE.
func (p Plan) MonthlyQuota() int64 {
	if q, ok := planQuotas[p]; ok {
		return q
	}
	return planQuotas[PlanFree]
}

// GraceLimit derives the soft ceiling above the hard quota. Calls between
// quota and grace are admitted but flagged.
func (p Plan) GraceLimit(factor float64) int64 {
	if factor < 1 {
		factor = 1
	}
	return int64(math.Ceil(float64(p.MonthlyQuota()) * factor))
}

type Principal struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	Plan      Plan      `db:"plan"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
