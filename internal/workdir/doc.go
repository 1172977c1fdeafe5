// Package workdir holds the file helpers shared by the converter, the
// result registry and the sweeper: creating the temp and output
// directories, spilling uploads to uniquely named temp files, idempotent
// deletion, and stat/open with retry on stale NFS handles.
package workdir
