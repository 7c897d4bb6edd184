package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry metrics
	PoolsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sdscompose_pools_total",
			Help: "Number of active pool records by service",
		},
		[]string{"service"},
	)

	BackendsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sdscompose_backends_total",
			Help: "Number of storage backends in the catalog",
		},
	)

	TiersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sdscompose_tiers_total",
			Help: "Number of storage tiers in the catalog",
		},
	)

	// Orchestrator metrics
	PoolOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdscompose_pool_operations_total",
			Help: "Pool operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	PoolOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sdscompose_pool_operation_duration_seconds",
			Help:    "Pool operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Host reconcile metrics
	HostReconcilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdscompose_host_reconciles_total",
			Help: "Per-host configuration reconciles by mode and status",
		},
		[]string{"mode", "status"},
	)

	HostReconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sdscompose_host_reconcile_duration_seconds",
			Help:    "Per-host reconcile duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	RemoteCopyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sdscompose_remote_copy_duration_seconds",
			Help:    "Remote file copy duration in seconds by stage",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	RemoteCopyRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sdscompose_remote_copy_retries_total",
			Help: "Remote file copy retries by stage",
		},
		[]string{"stage"},
	)
)

func init() {
	prometheus.MustRegister(PoolsTotal)
	prometheus.MustRegister(BackendsTotal)
	prometheus.MustRegister(TiersTotal)
	prometheus.MustRegister(PoolOperationsTotal)
	prometheus.MustRegister(PoolOperationDuration)
	prometheus.MustRegister(HostReconcilesTotal)
	prometheus.MustRegister(HostReconcileDuration)
	prometheus.MustRegister(RemoteCopyDuration)
	prometheus.MustRegister(RemoteCopyRetries)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
