package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var processedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "triage_worker_tickets_total",
	Help: "counter of processed tickets, by terminal outcome",
}, []string{"outcome"})

var droppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "triage_worker_dropped_total",
	Help: "counter of queue messages dropped before processing",
}, []string{"reason"})

var baselineTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "triage_worker_baseline_fallback_total",
	Help: "counter of tickets classified by the keyword baseline instead of the scorer",
})

var scorerLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "triage_worker_scorer_latency_seconds",
	Help:    "latency of scorer calls as observed by the worker",
	Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
})
