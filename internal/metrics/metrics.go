package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	InboundMessages  *prometheus.CounterVec
	OutboundMessages *prometheus.CounterVec
	WhatsAppRequests *prometheus.CounterVec
	WhatsAppLatency  *prometheus.HistogramVec
	AppSyncRequests  *prometheus.CounterVec
	AppSyncLatency   *prometheus.HistogramVec
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			InboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inbound_messages_total",
				Help:      "Total inbound WhatsApp webhook messages by payload type.",
			}, []string{"type"}),
			OutboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbound_messages_total",
				Help:      "Total messages sent back to the WhatsApp provider by type.",
			}, []string{"type"}),
			WhatsAppRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "whatsapp_requests_total",
				Help:      "Total WhatsApp provider API requests by endpoint and status.",
			}, []string{"endpoint", "status"}),
			WhatsAppLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "whatsapp_request_duration_seconds",
				Help:      "Latency distribution for WhatsApp provider API requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"endpoint", "status"}),
			AppSyncRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "appsync_requests_total",
				Help:      "Total GraphQL core API requests by operation and status.",
			}, []string{"operation", "status"}),
			AppSyncLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "appsync_request_duration_seconds",
				Help:      "Latency distribution for GraphQL core API requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation", "status"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.InboundMessages,
			metricsInstance.OutboundMessages,
			metricsInstance.WhatsAppRequests,
			metricsInstance.WhatsAppLatency,
			metricsInstance.AppSyncRequests,
			metricsInstance.AppSyncLatency,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
