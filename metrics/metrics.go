package metrics

import (
	"fmt"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connection Metrics
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_sessions_active",
		Help: "The current number of open websocket sessions.",
	})
	TotalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_sessions_total",
		Help: "The total number of websocket sessions accepted.",
	})
	HeartbeatTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_heartbeat_timeouts_total",
		Help: "The total number of sessions reaped by heartbeat timeout.",
	})

	// Delivery Metrics
	EnvelopesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_envelopes_sent_total",
		Help: "The total number of envelopes handed to session outbound buffers.",
	})
	EnvelopesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_envelopes_dropped_total",
		Help: "The total number of envelopes dropped because a session buffer was full.",
	})
	EventsFannedOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_fanned_out_total",
		Help: "The total number of domain events routed by the hub.",
	}, []string{"op"})
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_dropped_total",
		Help: "The total number of domain events dropped due to collaborator failures.",
	}, []string{"op"})

	// Auth Metrics
	AuthSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_auth_success_total",
		Help: "The total number of successful session authentications.",
	})
	AuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_auth_failures_total",
		Help: "The total number of failed session authentications.",
	})

	// Broker Metrics
	BrokerEventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_broker_events_consumed_total",
		Help: "The total number of domain events consumed from the message broker.",
	}, []string{"broker_type"})
	BrokerEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_broker_events_published_total",
		Help: "The total number of domain events published to the message broker.",
	}, []string{"broker_type"})
)

// StartServer starts the HTTP server for Prometheus metrics.
func StartServer(port int, path string) {
	http.Handle(path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	log.Printf("Starting metrics server on %s%s", addr, path)

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Fatalf("Failed to start metrics server: %v", err)
		}
	}()
}
