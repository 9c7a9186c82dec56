package lister

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for listing runs, exposed by the admin server.
var (
	pagesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lister_pages_processed_total",
		Help: "Total number of listing pages processed",
	}, []string{"lister", "instance"})

	originsRecordedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lister_origins_recorded_total",
		Help: "Total number of origins recorded in the scheduler",
	}, []string{"lister", "instance"})

	stateStoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lister_state_stores_total",
		Help: "Total number of checkpoint state writes to the scheduler",
	}, []string{"lister", "instance"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lister_retries_total",
		Help: "Total number of retry attempts by remote operation",
	}, []string{"operation"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lister_retry_backoff_seconds",
		Help:    "Backoff duration for retries by remote operation",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"operation"})

	retriesExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lister_retries_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by remote operation",
	}, []string{"operation"})
)
