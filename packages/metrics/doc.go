// Package metrics records request latencies of a scenario run in HDR
// histograms and summarises them as min, max, mean, p50, p95 and p99, overall
// and per operation.
package metrics
