// Package metrics provides Prometheus instrumentation for the gateway and
// the operator daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks gateway HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "convsync_http_request_duration_seconds",
			Help:    "Gateway HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status"},
	)

	// RequestsTotal tracks gateway HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convsync_http_requests_total",
			Help: "Total gateway HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// SocketConnectionsActive tracks open chat sockets by role.
	SocketConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "convsync_socket_connections_active",
			Help: "Open chat WebSocket connections",
		},
		[]string{"role"},
	)

	// MessagesStored tracks messages appended to the Message Store.
	MessagesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convsync_messages_stored_total",
			Help: "Messages appended to the Message Store",
		},
		[]string{"channel", "direction"},
	)

	// StatusAdvances tracks stored status transitions.
	StatusAdvances = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convsync_status_advances_total",
			Help: "Message status advances recorded by the gateway",
		},
		[]string{"status"},
	)

	// ProviderSendDuration tracks provider round-trips.
	ProviderSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "convsync_provider_send_duration_seconds",
			Help:    "Provider send round-trip duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10, 20},
		},
		[]string{"provider", "outcome"},
	)

	// MergesTotal tracks engine merge outcomes per source.
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convsync_engine_merged_messages_total",
			Help: "Messages folded into views by the reconciliation engine",
		},
		[]string{"source", "outcome"},
	)

	// SendsTotal tracks operator sends by outcome.
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convsync_sends_total",
			Help: "Operator sends by outcome",
		},
		[]string{"outcome"},
	)

	// ReconnectsTotal tracks transport reconnect attempts.
	ReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "convsync_transport_reconnects_total",
			Help: "Transport channel reconnect attempts",
		},
		[]string{"kind"},
	)

	// OpenViews tracks conversations held by the engine.
	OpenViews = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "convsync_engine_open_views",
			Help: "Conversations with an open view",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, route, status string, duration float64) {
	RequestDuration.WithLabelValues(method, route, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, route, status).Inc()
}

// RecordProviderSend records one provider round-trip.
func RecordProviderSend(provider string, ok bool, duration float64) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	ProviderSendDuration.WithLabelValues(provider, outcome).Observe(duration)
}

// RecordMerge records the counts of one engine merge.
func RecordMerge(source string, added, refined, dropped int) {
	MergesTotal.WithLabelValues(source, "added").Add(float64(added))
	MergesTotal.WithLabelValues(source, "refined").Add(float64(refined))
	MergesTotal.WithLabelValues(source, "dropped").Add(float64(dropped))
}
