/*
Package metrics exposes Prometheus metrics and health state for sdscompose.

All collectors are registered with the default Prometheus registry in init
and served by Handler, normally mounted at /metrics by pkg/api:

	sdscompose_pool_operations_total{operation,status}
	sdscompose_pool_operation_duration_seconds{operation}
	sdscompose_host_reconciles_total{mode,status}
	sdscompose_host_reconcile_duration_seconds{mode}
	sdscompose_remote_copy_duration_seconds{stage}
	sdscompose_remote_copy_retries_total{stage}
	sdscompose_pools_total{service}
	sdscompose_backends_total
	sdscompose_tiers_total

Operation metrics are recorded inline with Timer:

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.PoolOperationDuration, "create")

Gauges are refreshed by a Collector reading the bbolt store every 15s.

# Health

Components report health with UpdateComponent, or register a Probe that the
Collector re-runs on every tick. /ready turns 200 only once every critical
component (by default "registry") is registered and healthy; /health turns
503 as soon as any component is unhealthy.
*/
package metrics
