// Package metrics exposes the gateway's Prometheus counters and the
// metrics HTTP server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_connections_total",
		Help: "Accepted websocket connections.",
	})

	AuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_auth_failures_total",
		Help: "Denied connection or request authentications.",
	})

	EventsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_events_delivered_total",
		Help: "Events delivered to subscribed sessions.",
	})

	SendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_send_failures_total",
		Help: "Transport-level write failures to client sessions.",
	})

	BackboneRecordsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_backbone_records_dropped_total",
		Help: "Backbone log records dropped on cache miss or parse failure.",
	})
)

// NewServer returns the metrics HTTP server.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
}
