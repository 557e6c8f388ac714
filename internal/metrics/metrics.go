// Package metrics holds the pipeline's Prometheus collectors
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the dedicated registry served on /metrics
var Registry = prometheus.NewRegistry()

var (
	AlertsReceived = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "incidentd_alerts_received_total", Help: "Alerts accepted by the webhook"},
	)
	AlertsVerified = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "incidentd_alerts_verified_total", Help: "Verification results"},
		[]string{"status"},
	)
	AlertsNormalized = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "incidentd_alerts_normalized_total", Help: "Alerts normalized successfully"},
	)
	QueuePushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "incidentd_queue_pushes_total", Help: "Messages pushed per queue"},
		[]string{"queue"},
	)
	AlertsRetried = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "incidentd_alerts_retried_total", Help: "Alerts sent back for another normalization attempt"},
	)
	AlertsFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "incidentd_alerts_failed_total", Help: "Alerts moved to the error queue"},
		[]string{"stage"},
	)
	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "incidentd_decisions_total", Help: "Correlation decisions"},
		[]string{"action"},
	)
	IncidentsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "incidentd_incidents_created_total", Help: "Incidents opened"},
	)
	Escalations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "incidentd_escalations_total", Help: "Incidents reassigned to the secondary responder"},
	)
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "incidentd_notifications_total", Help: "Notification outcomes"},
		[]string{"type", "result"},
	)
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "incidentd_queue_depth", Help: "Messages waiting per queue"},
		[]string{"queue"},
	)
)

func init() {
	Registry.MustRegister(
		AlertsReceived, AlertsVerified, AlertsNormalized, QueuePushes, AlertsRetried,
		AlertsFailed, Decisions, IncidentsCreated, Escalations, Notifications, QueueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler serves the registry in the Prometheus text format
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
