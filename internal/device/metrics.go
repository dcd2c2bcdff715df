package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	acquisitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capturekit",
			Name:      "device_acquisitions_total",
			Help:      "Stream acquisition attempts by outcome",
		},
		[]string{"outcome"}, // outcome: "ok" or a taxonomy code
	)

	openStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "capturekit",
			Name:      "device_open_streams",
			Help:      "Currently open capture streams",
		},
	)

	ladderFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "capturekit",
			Name:      "device_constraint_fallbacks_total",
			Help:      "Acquisitions that succeeded only after constraint fallback",
		},
	)
)
