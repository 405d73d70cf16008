package dto

import (
	"time"

	"github.com/google/uuid"
)

type MonthlyUsageResponse struct {
	APIKeyID           uuid.UUID `json:"api_key_id"`
	PrincipalID        uuid.UUID `json:"principal_id"`
	Month              string    `json:"month"`
	TotalCalls         int64     `json:"total_calls"`
	SuccessfulCalls    int64     `json:"successful_calls"`
	FailedCalls        int64     `json:"failed_calls"`
	QuotaExceededCalls int64     `json:"quota_exceeded_calls"`
	QuotaLimit         int64     `json:"quota_limit"`
	GraceLimit         int64     `json:"grace_limit"`
	LastResetDate      time.Time `json:"last_reset_date"`
}
