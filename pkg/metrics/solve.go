package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initSolveMetrics initializes scheduling-related metrics.
func (m *Manager) initSolveMetrics(cfg Config) {
	m.solves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solves_total",
			Help: "Total number of solve requests by status",
		},
		[]string{"status"},
	)

	m.solveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "solve_duration_seconds",
			Help:    "Wall-clock duration of a solve in seconds",
			Buckets: cfg.SolveDurationBuckets,
		},
	)

	m.restarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "solve_restarts_total",
			Help: "Total number of randomized restart attempts executed",
		},
	)

	m.bestMakespan = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "solve_best_makespan",
			Help: "Makespan of the most recent schedule",
		},
	)

	m.planTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "plan_tasks",
			Help: "Number of tasks in the most recently solved plan",
		},
	)

	m.registry.MustRegister(m.solves)
	m.registry.MustRegister(m.solveDuration)
	m.registry.MustRegister(m.restarts)
	m.registry.MustRegister(m.bestMakespan)
	m.registry.MustRegister(m.planTasks)
}

// RecordSolve records a completed solve request.
func (m *Manager) RecordSolve(status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.solves.WithLabelValues(status).Inc()
	m.solveDuration.Observe(duration.Seconds())
}

// RecordRestarts records how many restart attempts a solve executed.
func (m *Manager) RecordRestarts(n int) {
	if !m.enabled {
		return
	}
	m.restarts.Add(float64(n))
}

// RecordSchedule records the outcome of the most recent schedule.
func (m *Manager) RecordSchedule(makespan, tasks int) {
	if !m.enabled {
		return
	}
	m.bestMakespan.Set(float64(makespan))
	m.planTasks.Set(float64(tasks))
}
