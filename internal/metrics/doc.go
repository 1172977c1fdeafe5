// Package metrics provides Prometheus instrumentation for snapconvert.
//
// All metrics are prefixed with "snapconvert_" and registered with the
// default registry through promauto. They are served by the separate
// metrics listener configured with METRICS_PORT.
//
// # Metric Categories
//
// ## HTTP Metrics
//
//   - HTTPRequestsTotal: requests by method, path and status
//   - HTTPRequestDuration: request latency by method and path
//   - HTTPRequestsInFlight: requests currently being served
//   - RateLimitedTotal: requests rejected by the per-client limiter
//
// ## Conversion Metrics
//
//   - ConversionsTotal: conversions by family route and status
//   - ConversionDuration: conversion latency by family route
//   - ToolInvocationsTotal / ToolDuration: external tool runs
//   - ToolAvailable: tools found by the startup tool check
//
// ## Storage Metrics
//
//   - RegistryEntries: registered results, sampled by Collector
//   - TempDirFiles / TempDirBytes: output directory usage
//   - SweepRunsTotal / SweepFilesRemoved / SweepErrors: sweeper activity
//
// Route labels are stable "<family>-to-<family>" strings rather than raw
// request paths so that label cardinality stays bounded.
package metrics
