// Package metrics holds the Prometheus instruments of selectord.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "selectord"

// Metrics holds all Prometheus metrics for selectord.
// Pass to components that need to record metrics.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	UpstreamsReplaced *prometheus.CounterVec
	TxConflicts       prometheus.Counter
	OrphansCollected  prometheus.Counter
	BrokenChains      prometheus.Gauge
	SeedApplied       *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
}

// New creates and registers all metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		OperationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Proxy selector operations processed",
			},
			[]string{"operation", "result"}, // result=ok/error
		),
		OperationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Proxy selector operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		UpstreamsReplaced: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstreams_replaced_total",
				Help:      "Upstream rows deleted or inserted by full-replace updates",
			},
			[]string{"action"}, // action=deleted/inserted
		),
		TxConflicts: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tx_conflicts_total",
				Help:      "Optimistic transactions replayed after a conflict",
			},
		),
		OrphansCollected: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orphans_collected_total",
				Help:      "Orphaned discovery chains removed by the collector",
			},
		),
		BrokenChains: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "broken_chains",
				Help:      "Proxy selectors whose discovery chain was incomplete at the last audit",
			},
		),
		SeedApplied: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "seed_applied_total",
				Help:      "Seed entries applied by the reloader",
			},
			[]string{"action"}, // action=created/updated/failed
		),
		HTTPRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Admin API requests served",
			},
			[]string{"method", "status"},
		),
	}
}
