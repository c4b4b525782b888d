package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var enqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "triage_broker_enqueued_total",
	Help: "counter of ticket messages pushed onto the work queue",
})

var dequeuedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "triage_broker_dequeued_total",
	Help: "counter of ticket messages popped from the work queue",
})

var statusWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "triage_broker_status_writes_total",
	Help: "counter of ticket status upserts, by resulting state",
}, []string{"state"})

var readyPoppedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "triage_broker_ready_popped_total",
	Help: "counter of tickets consumed from the ready index",
})
