// Package metrics exposes Prometheus metrics for the HTTP API, conversation
// turns and action dispatch on a dedicated registry.
package metrics
