package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reportsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cerbo",
		Name:      "reports_dispatched_total",
		Help:      "Reports moved from NON_ENVOYE to SENT, by category.",
	}, []string{"category"})

	reportsOverdue = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cerbo",
		Name:      "reports_overdue_total",
		Help:      "Reports moved to OVERDUE by the deadline sweep.",
	})

	deadlineSweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cerbo",
		Name:      "deadline_sweep_runs_total",
		Help:      "Deadline sweep runs by outcome.",
	}, []string{"result"})

	notificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cerbo",
		Name:      "notification_failures_total",
		Help:      "Best-effort notifications that could not be delivered.",
	})

	renderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cerbo",
		Name:      "render_failures_total",
		Help:      "Rendering collaborator failures, by document kind.",
	}, []string{"kind"})
)
