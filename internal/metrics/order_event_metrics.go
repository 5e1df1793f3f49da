package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Итог доставки события заказа для label `outcome`.
const (
	EventPublished    = "published"
	EventDeadLettered = "dead_lettered"
	// EventDropped: событие не доставлено и не попало в DLQ.
	EventDropped = "dropped"
)

// OrderEventMetrics описывает доставку событий заказов из outbox.
type OrderEventMetrics struct {
	deliveries *prometheus.CounterVec
	retries    *prometheus.CounterVec
	attempts   prometheus.Histogram

	backlog    prometheus.Gauge
	backlogAge prometheus.Gauge
}

// NewOrderEventMetrics регистрирует метрики в default registry.
func NewOrderEventMetrics() *OrderEventMetrics {
	return NewOrderEventMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderEventMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewOrderEventMetricsWithRegisterer(registerer prometheus.Registerer) *OrderEventMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderEventMetrics{
		deliveries: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_events_total",
			Help: "Order events that left the outbox, grouped by event type and outcome",
		}, []string{"event_type", "outcome"}),
		retries: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_event_retries_total",
			Help: "Repeated publish attempts for order events",
		}, []string{"event_type"}),
		attempts: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "storefront_order_event_publish_attempts",
			Help:    "Publish attempts needed to deliver an order event",
			Buckets: []float64{1, 2, 3, 5, 10},
		}),
		backlog: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_order_events_backlog",
			Help: "Order events waiting in the outbox",
		}),
		backlogAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_order_events_backlog_age_seconds",
			Help: "Age of the oldest order event waiting in the outbox",
		}),
	}
}

// RecordDelivery учитывает событие, которое покинуло outbox.
func (m *OrderEventMetrics) RecordDelivery(eventType, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(eventType, outcome).Inc()
}

// RecordPublished учитывает успешную доставку и число потраченных попыток.
func (m *OrderEventMetrics) RecordPublished(eventType string, attempts int) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(eventType, EventPublished).Inc()
	m.attempts.Observe(float64(attempts))
}

// RecordRetry учитывает повторную попытку публикации.
func (m *OrderEventMetrics) RecordRetry(eventType string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(eventType).Inc()
}

// SetBacklog выставляет размер очереди и возраст самого старого события.
func (m *OrderEventMetrics) SetBacklog(pending int, oldest time.Duration) {
	if m == nil {
		return
	}
	if pending == 0 || oldest < 0 {
		oldest = 0
	}
	m.backlog.Set(float64(pending))
	m.backlogAge.Set(oldest.Seconds())
}
