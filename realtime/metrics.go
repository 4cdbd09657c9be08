package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskdesk",
		Subsystem: "realtime",
		Name:      "reconnect_attempts_total",
		Help:      "Reconnection attempts made after a dropped or failed connection.",
	})

	eventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskdesk",
		Subsystem: "realtime",
		Name:      "events_received_total",
		Help:      "Events received from the realtime backend, by event name.",
	}, []string{"event"})

	connectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskdesk",
		Subsystem: "realtime",
		Name:      "connection_state",
		Help:      "Last observed channel state: 0 disconnected, 1 connecting, 2 connected.",
	})
)
