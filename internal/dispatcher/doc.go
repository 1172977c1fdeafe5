// Package dispatcher turns a batch of uploads into conversion outcomes.
//
// Each file is validated against the format registry, routed by its
// (input family, output family) pair to exactly one converter adapter, and
// run with bounded per-batch parallelism. Failures are captured per file
// and never abort the rest of the batch. Successful outputs are recorded
// in the result registry under a fresh identifier.
package dispatcher
