// Package logging provides the leveled logger used throughout SnapConvert.
//
// Levels, from most to least verbose:
//   - DEBUG: tool command lines, per-file routing decisions
//   - INFO: startup, sweeps that deleted files, completed batches
//   - WARN: failed best-effort cleanup, degraded tools
//   - ERROR: failed conversions and I/O errors
//   - FATAL: unrecoverable startup conditions only
//
// The level comes from DEBUG=true or LOG_LEVEL and can be overridden with
// SetLevel.
package logging
