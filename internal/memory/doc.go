// Package memory keeps the converter inside its container memory budget.
//
// [ConfigureFromEnv] derives GOMEMLIMIT from the Kubernetes Downward API
// value in MEMORY_LIMIT, scaled by MEMORY_RATIO (default 0.75). An explicit
// GOMEMLIMIT always wins. The ratio is lower than for a pure Go service
// because LibreOffice, ffmpeg and libvips allocate outside the Go heap.
//
//	env:
//	- name: MEMORY_LIMIT
//	  valueFrom:
//	    resourceFieldRef:
//	      resource: limits.memory
//
// [Monitor] samples the heap and, above the critical mark, makes new
// conversion requests wait in [Monitor.Wait] until usage falls below the
// high water mark. Requests that give up receive a 503 from the HTTP layer.
package memory
