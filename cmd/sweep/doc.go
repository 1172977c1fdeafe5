// Command sweep runs one cleanup pass over the SnapConvert work
// directories and exits. It is meant for cron jobs on hosts where the
// server's own sweeper is disabled or several instances share TMP_DIR.
//
// Usage:
//
//	sweep [-dir DIR]... [-max-age 30m] [-v]
//
// Without -dir it sweeps the input and output directories under $TMP_DIR
// (default ./tmp). Entries directly inside each directory whose
// modification time is older than -max-age are deleted.
package main
