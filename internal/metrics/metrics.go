package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "apiguard",
		Name:      "gate_decisions_total",
		Help:      "Request gate outcomes by decision reason.",
	}, []string{"outcome"})

	RateLimitDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "apiguard",
		Name:      "rate_limit_denials_total",
		Help:      "Rate limit denials by tier.",
	}, []string{"tier"})

	UsageResetRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "apiguard",
		Name:      "usage_reset_records_total",
		Help:      "Monthly usage reset outcomes per record.",
	}, []string{"result"})

	UsageResetLastRun = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "apiguard",
		Name:      "usage_reset_last_run_timestamp_seconds",
		Help:      "Unix time of the last monthly reset batch.",
	})
)
