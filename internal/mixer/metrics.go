package mixer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capturekit",
			Name:      "mixer_renders_total",
			Help:      "Mix renders by outcome",
		},
		[]string{"outcome"}, // "ok", "error" or "cancelled"
	)

	renderSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "capturekit",
			Name:      "mixer_render_seconds",
			Help:      "Wall time of successful mix renders",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)
)
