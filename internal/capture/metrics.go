package capture

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "capturekit",
			Name:      "capture_sessions_total",
			Help:      "Capture sessions armed",
		},
	)

	posts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "capturekit",
			Name:      "capture_posts_total",
			Help:      "Deliverables handed to the post collaborator",
		},
	)
)
