package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	discoveryRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discovery_runs_total",
		Help: "Completed discovery runs by detection method.",
	}, []string{"method"})

	discoveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "discovery_run_duration_seconds",
		Help:    "Wall time of one discovery run including fetch.",
		Buckets: prometheus.DefBuckets,
	})

	discoveryItems = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "discovery_items_per_run",
		Help:    "Candidate items returned per discovery run.",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
	})
)
