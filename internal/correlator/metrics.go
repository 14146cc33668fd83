package correlator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modwatch_events_total",
			Help: "Total gateway events received by kind.",
		},
		[]string{"kind"},
	)
	suppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modwatch_suppressed_total",
			Help: "Total events suppressed before emission by reason.",
		},
		[]string{"reason"},
	)
	recordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modwatch_records_total",
			Help: "Total audit-trail records emitted.",
		},
	)
	attributionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modwatch_attribution_total",
			Help: "Total attribution attempts by outcome.",
		},
		[]string{"outcome"},
	)
)
