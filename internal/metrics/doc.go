// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - HTTP request counts and latencies per route
//   - Validation rejections per input source
//   - Realtime hub clients, broadcasts and dropped frames
//   - Realtime client state transitions
//   - Change-event publish outcomes
//
// All recording methods are safe on a nil *Metrics, so components can take
// metrics as an optional dependency.
package metrics
