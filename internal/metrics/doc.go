// Package metrics exposes Prometheus instrumentation for the server
// pipeline and HTTP surface.
package metrics
