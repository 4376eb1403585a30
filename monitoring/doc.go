// Package monitoring wraps every storage gateway operation in a scoped
// measurement: elapsed time, success or failure, and bytes transferred where
// applicable. Metrics feed a rolling in-memory window from which health
// status is recomputed on demand, and mirrored Prometheus counters and
// histograms exported on the operational /metrics endpoint.
//
// The filter never converts errors; a failing call is recorded as a failed
// operation and the original error is returned unchanged. An empty metric
// window reports Healthy, the optimistic default.
package monitoring
