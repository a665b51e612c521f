// Package sinks provides progress.Sink implementations: structured logs,
// Prometheus collectors and a JSON Lines journal in the blob store.
package sinks
