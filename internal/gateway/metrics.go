package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modwatch_gateway_connected",
			Help: "1 when subscribed to the event topic, 0 otherwise.",
		},
	)
	messagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modwatch_gateway_messages_total",
			Help: "Total messages consumed from the event topic.",
		},
	)
	decodeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modwatch_gateway_decode_errors_total",
			Help: "Total messages skipped because they could not be decoded.",
		},
	)
	reconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modwatch_gateway_reconnects_total",
			Help: "Total reconnection attempts to the broker.",
		},
	)
)
