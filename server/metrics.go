package server

import "github.com/prometheus/client_golang/prometheus"

var (
	connectedSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connected_sessions",
		Help: "Number of currently logged-in sessions",
	})

	framesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_frames_total",
		Help: "Inbound frames processed by type",
	}, []string{"type"})

	broadcastFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_broadcast_failures_total",
		Help: "Fan-out sends that failed and evicted the recipient session",
	})

	offlineStored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_offline_messages_stored_total",
		Help: "Messages persisted for offline recipients",
	})

	offlineDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_offline_messages_delivered_total",
		Help: "Persisted messages flushed to a recipient on login",
	})

	storageErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_storage_errors_total",
		Help: "Message store operations that failed on the send or login path",
	})
)

func init() {
	prometheus.MustRegister(connectedSessions)
	prometheus.MustRegister(framesTotal)
	prometheus.MustRegister(broadcastFailures)
	prometheus.MustRegister(offlineStored)
	prometheus.MustRegister(offlineDelivered)
	prometheus.MustRegister(storageErrors)
}
