package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeMonthlyUsageReset = "usage:monthly:reset"
)

type MonthlyUsageResetPayload struct{}

func NewMonthlyUsageResetTask(opts ...asynq.Option) (*asynq.Task, error) {
	payload := MonthlyUsageResetPayload{}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	// One reset run at a time; re-enqueues within the window collapse.
	uniqueOpt := asynq.Unique(1 * time.Hour)
	allOpts := append(opts, uniqueOpt)

	return asynq.NewTask(TypeMonthlyUsageReset, payloadBytes, allOpts...), nil
}
