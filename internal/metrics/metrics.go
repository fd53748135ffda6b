// Package metrics defines the Prometheus instrumentation surface shared by the monitor,
// reconciler, notify, and selector packages. It deliberately avoids the global default registry -
// every caller goes through an explicit *Registry - so the observability HTTP server can swap in a
// fresh one across a config reload without leaking collectors registered under the old config.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles every gauge this program exposes, each pre-registered against its own private
// prometheus.Registry.
type Registry struct {
	registry *prometheus.Registry

	// EndpointHealth is 1 when an endpoint's monitor currently considers it healthy, 0 otherwise.
	EndpointHealth *prometheus.GaugeVec

	// EndpointDurations records the most recent duration of each probe phase, by endpoint and
	// phase name.
	EndpointDurations *prometheus.GaugeVec

	// EndpointSelected is 1 for every endpoint currently part of the active DNS set (the primary
	// plus any sticky carry-overs), 0 for every other configured endpoint.
	EndpointSelected *prometheus.GaugeVec

	// CloudflareUpdateSeconds is the duration of the most recent reconciliation call, regardless
	// of outcome.
	CloudflareUpdateSeconds prometheus.Gauge

	// TelegramSendSeconds is the duration of the most recent Telegram sendMessage call.
	TelegramSendSeconds prometheus.Gauge

	// TelegramQueueAmount is the current length of the pending notification queue.
	TelegramQueueAmount prometheus.Gauge
}

// New builds a Registry with every gauge registered against a fresh, private prometheus.Registry.
func New() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		EndpointHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "endpoint_health",
			Help: "1 if the endpoint is currently considered healthy, 0 otherwise.",
		}, []string{"name"}),
		EndpointDurations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "endpoint_durations_seconds",
			Help: "Duration of the most recent probe phase, by endpoint and phase.",
		}, []string{"name", "phase"}),
		EndpointSelected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "endpoint_selected",
			Help: "1 if the endpoint is currently part of the active DNS set, 0 otherwise.",
		}, []string{"name"}),
		CloudflareUpdateSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cloudflare_update_seconds",
			Help: "Duration of the most recent DNS provider reconciliation call.",
		}),
		TelegramSendSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telegram_send_seconds",
			Help: "Duration of the most recent Telegram sendMessage call.",
		}),
		TelegramQueueAmount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telegram_queue_amount",
			Help: "Current length of the pending Telegram notification queue.",
		}),
	}

	r.registry.MustRegister(
		r.EndpointHealth,
		r.EndpointDurations,
		r.EndpointSelected,
		r.CloudflareUpdateSeconds,
		r.TelegramSendSeconds,
		r.TelegramQueueAmount,
	)

	return r
}

// Gatherer exposes the underlying prometheus.Gatherer for the HTTP handler, without letting
// callers reach in and register arbitrary collectors against it.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// SetHealth records an endpoint's current health, satisfying monitor.Metrics.
func (r *Registry) SetHealth(name string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	r.EndpointHealth.WithLabelValues(name).Set(v)
}

// ObservePhase records the duration of one probe phase for one endpoint, satisfying
// monitor.Metrics.
func (r *Registry) ObservePhase(name, phase string, seconds float64) {
	r.EndpointDurations.WithLabelValues(name, phase).Set(seconds)
}

// SetSelected records whether an endpoint is currently part of the active DNS set.
func (r *Registry) SetSelected(name string, selected bool) {
	v := 0.0
	if selected {
		v = 1
	}
	r.EndpointSelected.WithLabelValues(name).Set(v)
}

// ObserveCloudflareUpdate records the duration of a reconciliation call. Matches the
// func(time.Duration) shape reconciler.Client.OnUpdateDuration expects.
func (r *Registry) ObserveCloudflareUpdate(d time.Duration) {
	r.CloudflareUpdateSeconds.Set(d.Seconds())
}

// ObserveTelegramSend records the duration of a Telegram sendMessage call. Matches the
// func(time.Duration) shape notify.Queue.OnSendDuration expects.
func (r *Registry) ObserveTelegramSend(d time.Duration) {
	r.TelegramSendSeconds.Set(d.Seconds())
}

// SetTelegramQueueLength records the current notification queue length. Matches the func(int)
// shape notify.Queue.OnQueueLength expects.
func (r *Registry) SetTelegramQueueLength(n int) {
	r.TelegramQueueAmount.Set(float64(n))
}
