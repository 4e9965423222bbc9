// Package metrics exposes Prometheus instrumentation for the scheduling
// engine: task throughput and duration observed through the result publisher
// chain, plus a background queue depth collector. The Collector owns its own
// registry, so embedding applications never collide with the default global
// one.
package metrics
