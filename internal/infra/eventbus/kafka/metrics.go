package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts publish outcomes per topic.
type Metrics interface {
	IncMessagePublished(topic string)
	IncPublishError(topic string)
}

type promMetrics struct {
	published *prometheus.CounterVec
	errors    *prometheus.CounterVec
}

// NewMetrics creates publisher counters registered with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) Metrics {
	f := promauto.With(reg)
	return &promMetrics{
		published: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "messages_published_total",
			Help:      "Total number of events published to Kafka",
		}, []string{"topic"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_errors_total",
			Help:      "Total number of failed Kafka publishes",
		}, []string{"topic"}),
	}
}

func (m *promMetrics) IncMessagePublished(topic string) { m.published.WithLabelValues(topic).Inc() }
func (m *promMetrics) IncPublishError(topic string)     { m.errors.WithLabelValues(topic).Inc() }
