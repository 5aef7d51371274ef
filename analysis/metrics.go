package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeParsed   = "parsed"
	outcomeFallback = "fallback"
	outcomeFailed   = "failed"
)

var (
	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractrisk_analyses_total",
			Help: "Completed analysis passes by outcome.",
		},
		[]string{"outcome"},
	)

	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contractrisk_ai_request_duration_seconds",
			Help:    "Duration of AI provider calls.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider", "result"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "contractrisk_analysis_queue_depth",
			Help: "Analysis jobs waiting for a worker.",
		},
	)
)
