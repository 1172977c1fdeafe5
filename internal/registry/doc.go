// Package registry maps result identifiers to converted files.
//
// A Registry wraps one Store backend (memory, SQLite or Redis) and enforces
// that the filesystem is authoritative: an entry whose file has gone
// missing is treated as not found and removed on the lookup that notices
// it. The registry never expires entries by itself; files are deleted
// after download or by the sweeper.
//
// Identifiers are random UUIDv4 strings (122 random bits) and act as
// capability tokens for downloads.
package registry
