package compositor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	achievedFPS = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "capturekit",
			Name:      "compositor_achieved_fps",
			Help:      "Frames per second achieved over the last monitor window",
		},
	)

	qualityLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "capturekit",
			Name:      "compositor_quality_level",
			Help:      "Current render quality (0=low, 1=medium, 2=high)",
		},
	)

	demotions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "capturekit",
			Name:      "compositor_quality_demotions_total",
			Help:      "Quality ladder demotions triggered by low frame rate",
		},
	)

	contextLosses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "capturekit",
			Name:      "compositor_context_losses_total",
			Help:      "Render context loss events",
		},
	)
)
