package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/makkenzo/apiguard/internal/domain/usage"
	"github.com/makkenzo/apiguard/internal/handler/dto"
	"github.com/makkenzo/apiguard/internal/ierr"
	"github.com/makkenzo/apiguard/internal/service"
	"go.uber.org/zap"
)

// UsageHandler is the admin surface over monthly accounting: per-key
// summaries and the manual trigger for the reset batch.
type UsageHandler struct {
	quota  *service.QuotaAccountant
	reset  *service.UsageResetService
	logger *zap.Logger
}

func NewUsageHandler(quota *service.QuotaAccountant, reset *service.UsageResetService, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{
		quota:  quota,
		reset:  reset,
		logger: logger.Named("UsageHandler"),
	}
}

func (h *UsageHandler) GetMonthlyUsage(c *gin.Context) {
	keyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		_ = c.Error(fmt.Errorf("%w: invalid api key id format", ierr.ErrValidation))
		return
	}

	month := c.Query("month")
	if month == "" {
		month = usage.MonthOf(time.Now())
	} else if _, perr := time.Parse("2006-01", month); perr != nil {
		_ = c.Error(fmt.Errorf("%w: month must be formatted YYYY-MM", ierr.ErrValidation))
		return
	}

	rec, err := h.quota.MonthlyUsage(c.Request.Context(), keyID, month)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.MonthlyUsageResponse{
		APIKeyID:           rec.APIKeyID,
		PrincipalID:        rec.PrincipalID,
		Month:              rec.Month,
		TotalCalls:         rec.TotalCalls,
		SuccessfulCalls:    rec.SuccessfulCalls,
		FailedCalls:        rec.FailedCalls,
		QuotaExceededCalls: rec.QuotaExceededCalls,
		QuotaLimit:         rec.QuotaLimit,
		GraceLimit:         rec.GraceLimit,
		LastResetDate:      rec.LastResetDate,
	})
}

// TriggerReset runs the monthly reset batch synchronously for operational
// recovery, outside the scheduler. The response is the batch summary.
func (h *UsageHandler) TriggerReset(c *gin.Context) {
	h.logger.Info("Manual monthly usage reset triggered")

	summary, err := h.reset.ResetRolledOver(c.Request.Context(), time.Now())
	if err != nil {
		h.logger.Error("Manual monthly usage reset failed", zap.Error(err))
		_ = c.Error(fmt.Errorf("%w: reset batch: %v", ierr.ErrInternalServer, err))
		return
	}

	c.JSON(http.StatusOK, summary)
}
