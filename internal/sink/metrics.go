package sink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modwatch_sink_send_total",
			Help: "Total record send attempts by status.",
		},
		[]string{"status"},
	)
	amendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modwatch_sink_amend_total",
			Help: "Total record amendment attempts by status.",
		},
		[]string{"status"},
	)
)
