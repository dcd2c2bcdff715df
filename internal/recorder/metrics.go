package recorder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "capturekit",
			Name:      "recorder_sessions_total",
			Help:      "Recording sessions started",
		},
	)

	chunksReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "capturekit",
			Name:      "recorder_chunks_total",
			Help:      "Encoder output chunks received",
		},
	)

	bytesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "capturekit",
			Name:      "recorder_bytes_total",
			Help:      "Encoder output bytes received",
		},
	)

	finalizations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capturekit",
			Name:      "recorder_finalizations_total",
			Help:      "Recording finalizations by outcome",
		},
		[]string{"outcome"}, // "ok" or "error"
	)
)
