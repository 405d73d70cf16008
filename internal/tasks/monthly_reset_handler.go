package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/makkenzo/apiguard/internal/service"
	"go.uber.org/zap"
)

// MonthlyResetHandler runs the usage reset batch when the scheduled task
// fires. Per-record failures are tallied inside the service and never fail
// the task; only a batch-level listing error propagates so asynq retries.
type MonthlyResetHandler struct {
	reset  *service.UsageResetService
	logger *zap.Logger
}

func NewMonthlyResetHandler(reset *service.UsageResetService, logger *zap.Logger) *MonthlyResetHandler {
	return &MonthlyResetHandler{
		reset:  reset,
		logger: logger.Named("MonthlyResetHandler"),
	}
}

func (h *MonthlyResetHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeMonthlyUsageReset {
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}

	var p MonthlyUsageResetPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error("Failed to unmarshal payload for monthly reset task", zap.Error(err), zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %v", err)
	}

	h.logger.Info("Processing scheduled monthly usage reset...")

	summary, err := h.reset.ResetRolledOver(ctx, time.Now())
	if err != nil {
		h.logger.Error("Monthly usage reset batch failed", zap.Error(err))
		return fmt.Errorf("usage reset batch: %w", err)
	}

	h.logger.Info("Scheduled monthly usage reset finished",
		zap.String("month", summary.Month),
		zap.Int("total", summary.Total),
		zap.Int("success", summary.Success),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Float64("success_rate", summary.SuccessRate),
	)
	return nil
}
