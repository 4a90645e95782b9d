// Package metrics holds the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Sessions    *prometheus.GaugeVec
	Broadcasts  *prometheus.CounterVec
	Dropped     *prometheus.CounterVec
	Items86     prometheus.Gauge
	Toggles     prometheus.Counter
	LowMargin   prometheus.Counter
	Webhooks    *prometheus.CounterVec
	HTTPLatency *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses a private registry so
// tests can build several instances.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		Sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "table1837",
			Name:      "hub_sessions",
			Help:      "Open websocket sessions per channel.",
		}, []string{"channel"}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "table1837",
			Name:      "hub_broadcasts_total",
			Help:      "Envelopes broadcast per channel and event.",
		}, []string{"channel", "event"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "table1837",
			Name:      "hub_dropped_total",
			Help:      "Inbound frames or sessions dropped, by reason.",
		}, []string{"reason"}),
		Items86: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "table1837",
			Name:      "eightysix_items",
			Help:      "Items currently on the 86 list.",
		}),
		Toggles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "table1837",
			Name:      "checklist_toggles_total",
			Help:      "Checklist task toggles.",
		}),
		LowMargin: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "table1837",
			Name:      "pourcost_low_margin_alerts_total",
			Help:      "Low-margin alerts raised by pour cost calculations.",
		}),
		Webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "table1837",
			Name:      "webhook_deliveries_total",
			Help:      "Webhook deliveries by outcome.",
		}, []string{"outcome"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "table1837",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
	reg.MustRegister(m.Sessions, m.Broadcasts, m.Dropped, m.Items86, m.Toggles, m.LowMargin, m.Webhooks, m.HTTPLatency)
	return m
}
