// Package sweeper deletes aged files from the working directories.
//
// A Sweeper is either stopped or running. Start runs one sweep right away
// and then one per interval; Stop cancels the schedule and waits for an
// in-flight sweep to finish. Sweeps only ever delete files, they never
// touch the result registry, which notices missing files on its own.
package sweeper
