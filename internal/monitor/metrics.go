package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sightingsAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classwatch_sightings_appended_total",
		Help: "Sightings appended to the active session log.",
	})
	sightingsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classwatch_sightings_dropped_total",
		Help: "Sightings dropped because no session was open.",
	})
	sessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classwatch_sessions_opened_total",
		Help: "Session open triggers fired.",
	})
	sessionsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classwatch_sessions_closed_total",
		Help: "Session close triggers fired.",
	})
	accountingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classwatch_accounting_failures_total",
		Help: "Accounting passes aborted by malformed sightings.",
	})
	dispatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classwatch_dispatch_failures_total",
		Help: "Dispatch action failures at session close.",
	}, []string{"action"})
)
