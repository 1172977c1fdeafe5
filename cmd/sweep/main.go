package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"snapconvert/internal/logging"
	"snapconvert/internal/sweeper"
	"snapconvert/internal/workdir"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// dirList collects repeated -dir flags.
type dirList []string

func (d *dirList) String() string { return strings.Join(*d, ",") }

func (d *dirList) Set(v string) error {
	*d = append(*d, v)
	return nil
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var dirs dirList
	fs.Var(&dirs, "dir", "directory to sweep (repeatable; default: input and output under $TMP_DIR)")
	maxAge := fs.Duration("max-age", sweeper.DefaultMaxAge, "delete entries older than this")
	verbose := fs.Bool("v", false, "log every deleted entry")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *maxAge <= 0 {
		fmt.Fprintln(stderr, "max-age must be positive")
		return 2
	}
	if *verbose {
		logging.SetLevel(logging.LevelDebug)
	}

	if len(dirs) == 0 {
		root := os.Getenv("TMP_DIR")
		if root == "" {
			root = "./tmp"
		}
		layout := workdir.NewLayout(root)
		dirs = dirList{layout.Input, layout.Output}
	}

	now := time.Now()
	total := 0
	for _, dir := range dirs {
		n := sweeper.Sweep(dir, *maxAge, now)
		fmt.Fprintf(stdout, "%s: removed %d\n", dir, n)
		total += n
	}
	fmt.Fprintf(stdout, "total: removed %d\n", total)
	return 0
}
