package apikey

import "time"

// Tier is the short-horizon rate-limit class of a key, independent of the
// monthly quota derived from the owning principal's plan.
type Tier string

const (
	TierBasic      Tier = "BASIC"
	TierStandard   Tier = "STANDARD"
	TierPremium    Tier = "PREMIUM"
	TierEnterprise Tier = "ENTERPRISE"
	TierUnlimited  Tier = "UNLIMITED"
)

type TierLimits struct {
	Requests  int64
	Window    time.Duration
	Unlimited bool
}

var tierLimits = map[Tier]TierLimits{
	TierBasic:      {Requests: 100, Window: 24 * time.Hour},
	TierStandard:   {Requests: 1000, Window: 24 * time.Hour},
	TierPremium:    {Requests: 10000, Window: 24 * time.Hour},
	TierEnterprise: {Requests: 50000, Window: 24 * time.Hour},
	TierUnlimited:  {Unlimited: true, Window: 24 * time.Hour},
}

// Limits returns the window ceiling for the tier. Unknown tiers fall back to
// BASIC rather than passing unlimited.
func (t Tier) Limits() TierLimits {
	if l, ok := tierLimits[t]; ok {
		return l
	}
	return tierLimits[TierBasic]
}

func (t Tier) Valid() bool {
	_, ok := tierLimits[t]
	return ok
}
