// Package observe provides observability primitives for the sync engine.
//
// It is a pure instrumentation library: no caching, no transport, no I/O
// beyond exporter setup. Consumers wire the observer into the sync context,
// the realtime channel, and the presence poller.
package observe
