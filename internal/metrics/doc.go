// Package metrics exposes Prometheus counters for the sampling loop, the
// classifier round trips, the alarm actuator and the HTTP API.
package metrics
