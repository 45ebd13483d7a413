// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Feed connection state, connect attempts and message rates
//   - Parse errors and asset invalidations
//   - Cache write failures by operation
//   - Tracked asset count and applied price updates
package metrics
