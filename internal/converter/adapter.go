package converter

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"snapconvert/internal/formats"
	"snapconvert/internal/logging"
	"snapconvert/internal/workdir"
)

// DefaultTimeout bounds each subprocess invocation unless configured.
const DefaultTimeout = 30 * time.Second

// Job is one file's conversion attempt.
type Job struct {
	Input        []byte
	InputFormat  formats.Format
	OutputFormat formats.Format
	// TempDir receives the spilled input; OutputDir receives the result.
	TempDir   string
	OutputDir string
	// Timeout overrides the adapter default when positive.
	Timeout time.Duration
}

// Adapter wraps one external tool or library for one conversion family.
type Adapter interface {
	// Name is the stable tool label used in errors and metrics.
	Name() string
	// Available reports whether the tool can be used, without converting.
	Available(ctx context.Context) error
	// Convert produces the output file and returns its path.
	Convert(ctx context.Context, job Job) (string, error)
}

// Config holds the tool locations and limits shared by all adapters.
type Config struct {
	SofficePath  string
	PdftoppmPath string
	FFmpegPath   string
	Timeout      time.Duration
	VideoTimeout time.Duration
	PDFDPI       int
	KillGrace    time.Duration
}

// DefaultConfig returns the stock tool names and limits.
func DefaultConfig() Config {
	return Config{
		SofficePath:  "soffice",
		PdftoppmPath: "pdftoppm",
		FFmpegPath:   "ffmpeg",
		Timeout:      DefaultTimeout,
		VideoTimeout: DefaultTimeout,
		PDFDPI:       150,
		KillGrace:    DefaultKillGrace,
	}
}

var (
	_ Adapter = (*DocumentAdapter)(nil)
	_ Adapter = (*RasterAdapter)(nil)
	_ Adapter = (*ImageAdapter)(nil)
	_ Adapter = (*ComposeAdapter)(nil)
	_ Adapter = (*VideoAdapter)(nil)
)

// Set is the full collection of adapters sharing one Runner.
type Set struct {
	Runner   *Runner
	Document *DocumentAdapter
	Raster   *RasterAdapter
	Image    *ImageAdapter
	Composer *ComposeAdapter
	Video    *VideoAdapter
}

// NewSet builds every adapter from cfg.
func NewSet(cfg Config) *Set {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.VideoTimeout <= 0 {
		cfg.VideoTimeout = cfg.Timeout
	}
	if cfg.PDFDPI <= 0 {
		cfg.PDFDPI = 150
	}

	runner := NewRunner(cfg.KillGrace)
	image := NewImageAdapter()

	return &Set{
		Runner:   runner,
		Document: NewDocumentAdapter(runner, cfg.SofficePath, cfg.Timeout),
		Raster:   NewRasterAdapter(runner, cfg.PdftoppmPath, cfg.Timeout, cfg.PDFDPI),
		Image:    image,
		Composer: NewComposeAdapter(image),
		Video:    NewVideoAdapter(runner, cfg.FFmpegPath, cfg.VideoTimeout),
	}
}

// All returns the adapters in a stable order.
func (s *Set) All() []Adapter {
	return []Adapter{s.Document, s.Raster, s.Image, s.Composer, s.Video}
}

// Check checks every adapter and returns the failures keyed by tool name.
// A tool with a nil entry is available.
func (s *Set) Check(ctx context.Context) map[string]error {
	status := make(map[string]error)
	for _, a := range s.All() {
		status[a.Name()] = a.Available(ctx)
	}
	return status
}

func timeoutFor(job Job, fallback time.Duration) time.Duration {
	if job.Timeout > 0 {
		return job.Timeout
	}
	return fallback
}

// outputPath returns a fresh file path in dir with the given extension.
func outputPath(dir, ext string) string {
	return filepath.Join(dir, uuid.NewString()+"."+ext)
}

// requireOutput confirms a tool left a non-empty file at path.
func requireOutput(tool, path string) error {
	size, err := workdir.FileSize(path)
	if err != nil {
		return toolError(tool, ErrOutputMissing, err)
	}
	if size == 0 {
		removeOutput(path)
		return toolError(tool, ErrOutputMissing, fmt.Errorf("%s is empty", filepath.Base(path)))
	}
	return nil
}

// removeOutput deletes a partial or rejected output. Failures are logged
// and otherwise ignored.
func removeOutput(path string) {
	if err := workdir.Remove(path); err != nil {
		logging.Warn("Failed to remove %s: %v", path, err)
	}
}

func removeAll(paths []string) {
	for _, p := range paths {
		removeOutput(p)
	}
}
