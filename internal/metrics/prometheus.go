package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listener_messages_received_total",
			Help: "Total number of messages received per queue endpoint",
		},
		[]string{"endpoint"},
	)

	MessagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listener_messages_processed_total",
			Help: "Total number of messages handled per queue endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	MessagesDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listener_messages_deleted_total",
			Help: "Total number of messages deleted from the queue after handling",
		},
		[]string{"endpoint"},
	)

	ReceiveErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listener_receive_errors_total",
			Help: "Total number of failed receive calls per queue endpoint",
		},
		[]string{"endpoint"},
	)

	WorkerActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_active_goroutines",
			Help: "Number of active worker goroutines per pool",
		},
		[]string{"pool"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Approximate number of visible messages per queue endpoint",
		},
		[]string{"endpoint"},
	)
)

var initOnce sync.Once

// Init registers metrics with Prometheus. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			MessagesReceived,
			MessagesProcessed,
			MessagesDeleted,
			ReceiveErrors,
			WorkerActive,
			QueueDepth,
		)
	})
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
