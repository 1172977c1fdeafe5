/*
Package workers sizes and runs the bounded fan-out used for conversion
batches.

Worker counts are derived from GOMAXPROCS rather than runtime.NumCPU, so
they follow container CPU limits:

	workers.ForCPU(8)   // 1 per CPU, at most 8 (image encoding)
	workers.ForIO(16)   // 2 per CPU, at most 16 (waiting on subprocesses)
	workers.ForMixed(4) // 1.5 per CPU, at most 4

The CONVERSION_WORKERS environment variable overrides the calculation,
still capped by the limit argument.

Each runs fn for every index in [0, n) with at most the given number of
calls in flight and returns once all have finished. Results are written by
index, so callers keep input order without extra synchronization:

	out := make([]Outcome, len(files))
	workers.Each(ctx, len(files), workers.ForMixed(4), func(ctx context.Context, i int) {
		out[i] = convert(ctx, files[i])
	})
*/
package workers
