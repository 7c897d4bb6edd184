// Package api serves the composer's health, readiness and Prometheus
// metrics endpoints over HTTP.
//
//	GET /health              liveness, always 200 while running
//	GET /ready               200 once the registry store is readable and
//	                         every critical component is healthy
//	GET /health/components   per-component health from pkg/metrics
//	GET /live                process uptime
//	GET /metrics             Prometheus exposition
package api
