// Package progress streams per-book pipeline events from the collector to
// sinks. Emit never blocks; events are batched and flushed in the background.
package progress
