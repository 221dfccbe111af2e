package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	CaseExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gantry_case_executions_total",
			Help: "Total number of case executions by status.",
		},
		[]string{"status"},
	)

	CaseExecutionDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gantry_case_execution_duration_seconds",
			Help:    "Duration of case executions in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"status"},
	)

	HardwareLockContentionTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gantry_hardware_lock_contention_total",
			Help: "Total number of bounded waits that failed to acquire the hardware lock.",
		},
	)

	PlanRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gantry_plan_runs_total",
			Help: "Total number of plan runs by terminal status.",
		},
		[]string{"status"},
	)

	BatchRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gantry_batch_runs_total",
			Help: "Total number of batch sweeps by terminal status.",
		},
		[]string{"status"},
	)

	DistributedLockAcquisitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gantry_distributed_lock_acquisitions_total",
			Help: "Total number of distributed lock acquisition attempts by outcome.",
		},
		[]string{"key", "outcome"},
	)

	HeartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gantry_heartbeats_total",
			Help: "Total number of liveness heartbeats emitted by machine.",
		},
		[]string{"machine_id"},
	)

	PlansWatchdogFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gantry_plans_watchdog_failed_total",
			Help: "Total number of stuck plans forcibly failed by the watchdog.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		CaseExecutionsTotal,
		CaseExecutionDurationSeconds,
		HardwareLockContentionTotal,
		PlanRunsTotal,
		BatchRunsTotal,
		DistributedLockAcquisitionsTotal,
		HeartbeatsTotal,
		PlansWatchdogFailedTotal,
	)
}
