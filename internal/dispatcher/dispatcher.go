package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"snapconvert/internal/converter"
	"snapconvert/internal/formats"
	"snapconvert/internal/logging"
	"snapconvert/internal/metrics"
	"snapconvert/internal/registry"
	"snapconvert/internal/workdir"
	"snapconvert/internal/workers"
)

// Batch-level validation errors. Any other problem is reported per file.
var (
	ErrNoFiles     = errors.New("no files provided")
	ErrNoTarget    = errors.New("target format is required")
	ErrMergeTarget = errors.New("merge is only supported with target format pdf")
)

const (
	// mergedName is the download name of a merged PDF.
	mergedName = "merged.pdf"
	// composerName labels the merge step in errors and logs.
	composerName = "pdf-composer"
)

// File is one uploaded file.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Request is a batch of files to convert to one target format.
type Request struct {
	Files  []File
	Target string
	// Merge composes every image into a single PDF.
	Merge bool
}

// Outcome is the per-file result. Error is set on failure; the other
// fields except OriginalName are set on success.
type Outcome struct {
	ID            string `json:"id,omitempty"`
	OriginalName  string `json:"originalName"`
	ConvertedName string `json:"convertedName,omitempty"`
	ContentType   string `json:"contentType,omitempty"`
	Size          int64  `json:"size,omitempty"`
	DownloadURL   string `json:"downloadUrl,omitempty"`
	Error         string `json:"error,omitempty"`
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool { return o.Error == "" }

// Batch is the aggregated result of a request. Results follow input order.
type Batch struct {
	Success   bool      `json:"success"`
	Results   []Outcome `json:"results"`
	Converted int       `json:"converted"`
	Message   string    `json:"message"`
}

// Registrar stores successful results.
type Registrar interface {
	Put(ctx context.Context, res registry.Result) error
}

// Composer builds one PDF from several images.
type Composer interface {
	Compose(ctx context.Context, inputs [][]byte, outputDir string) (string, error)
}

// Config wires a Dispatcher.
type Config struct {
	Adapters map[Route]converter.Adapter
	Composer Composer
	Registry Registrar
	Layout   workdir.Layout
	// MaxFileSize rejects larger files per file; 0 disables the check.
	MaxFileSize int64
	// Workers bounds per-batch parallelism; 0 sizes it from the CPU count.
	Workers int
	// DownloadPrefix is joined with the result id to form DownloadURL.
	DownloadPrefix string
}

// Dispatcher validates, routes and runs conversion batches. It holds no
// per-batch state, so batches may run concurrently.
type Dispatcher struct {
	adapters    map[Route]converter.Adapter
	composer    Composer
	registry    Registrar
	layout      workdir.Layout
	maxFileSize int64
	workers     int
	prefix      string
}

// New creates a Dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = workers.ForMixed(4)
	}
	if cfg.DownloadPrefix == "" {
		cfg.DownloadPrefix = "/api/download/"
	}
	return &Dispatcher{
		adapters:    cfg.Adapters,
		composer:    cfg.Composer,
		registry:    cfg.Registry,
		layout:      cfg.Layout,
		maxFileSize: cfg.MaxFileSize,
		workers:     cfg.Workers,
		prefix:      cfg.DownloadPrefix,
	}
}

// HandleBatch converts every file in req. Only an empty batch, a missing
// target or an invalid merge request fail the whole call; everything else
// becomes a per-file failure and the remaining files still run.
func (d *Dispatcher) HandleBatch(ctx context.Context, req Request) (Batch, error) {
	if len(req.Files) == 0 {
		return Batch{}, ErrNoFiles
	}
	target := formats.Normalize(req.Target)
	if target == "" {
		return Batch{}, ErrNoTarget
	}
	if req.Merge && target != "pdf" {
		return Batch{}, ErrMergeTarget
	}

	metrics.BatchSize.Observe(float64(len(req.Files)))

	var results []Outcome
	if req.Merge {
		results = d.merge(ctx, req.Files)
	} else {
		results = make([]Outcome, len(req.Files))
		workers.Each(ctx, len(req.Files), d.workers, func(ctx context.Context, i int) {
			results[i] = d.convertOne(ctx, req.Files[i], target)
		})
	}

	converted := 0
	for _, r := range results {
		if r.OK() {
			converted++
		}
	}

	return Batch{
		Success:   true,
		Results:   results,
		Converted: converted,
		Message:   fmt.Sprintf("Converted %d of %d files", converted, len(req.Files)),
	}, nil
}

// validate checks one file against the target and returns its format and
// route.
func (d *Dispatcher) validate(f File, target formats.Format) (formats.Format, Route, error) {
	if d.maxFileSize > 0 && int64(len(f.Data)) > d.maxFileSize {
		return "", "", fmt.Errorf("file size exceeds maximum allowed size of %dMB", d.maxFileSize/(1024*1024))
	}

	in, err := formats.ValidateFile(f.Name, f.ContentType)
	if err != nil {
		return "", "", err
	}
	if err := formats.ValidatePair(in, string(target)); err != nil {
		return "", "", err
	}

	route, ok := RouteFor(in, target)
	if !ok {
		return "", "", fmt.Errorf("%w: no converter for %s to %s", formats.ErrIllegalConversion, in, target)
	}
	if _, ok := d.adapters[route]; !ok {
		return "", "", fmt.Errorf("no converter configured for %s", route)
	}
	return in, route, nil
}

func (d *Dispatcher) convertOne(ctx context.Context, f File, target formats.Format) Outcome {
	in, route, err := d.validate(f, target)
	if err != nil {
		logging.Debug("Rejected %s: %v", f.Name, err)
		return Outcome{OriginalName: f.Name, Error: err.Error()}
	}

	metrics.UploadBytes.Add(float64(len(f.Data)))
	metrics.ConversionsInFlight.Inc()
	start := time.Now()

	adapter := d.adapters[route]
	path, err := guard(adapter.Name(), route, func() (string, error) {
		return adapter.Convert(ctx, converter.Job{
			Input:        f.Data,
			InputFormat:  in,
			OutputFormat: target,
			TempDir:      d.layout.Input,
			OutputDir:    d.layout.Output,
		})
	})

	metrics.ConversionsInFlight.Dec()
	metrics.ConversionDuration.WithLabelValues(string(route)).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.ConversionsTotal.WithLabelValues(string(route), "error").Inc()
		logging.Error("Conversion failed for %s (%s): %v", f.Name, route, err)
		return Outcome{OriginalName: f.Name, Error: converter.Message(err)}
	}

	metrics.ConversionsTotal.WithLabelValues(string(route), "success").Inc()
	logging.Info("Converted %s to %s via %s in %v", f.Name, target, route, time.Since(start).Round(time.Millisecond))

	return d.register(ctx, f.Name, formats.OutputName(f.Name, outputExt(path, target)), path)
}

// merge validates every file as an image bound for PDF and composes the
// valid ones into a single document. Invalid files are reported
// individually, ahead of the merged outcome.
func (d *Dispatcher) merge(ctx context.Context, files []File) []Outcome {
	var results []Outcome
	var inputs [][]byte
	var names []string

	for _, f := range files {
		_, route, err := d.validate(f, "pdf")
		if err == nil && route != RouteImageToPDF {
			err = fmt.Errorf("only images can be merged into a PDF")
		}
		if err != nil {
			results = append(results, Outcome{OriginalName: f.Name, Error: err.Error()})
			continue
		}
		inputs = append(inputs, f.Data)
		names = append(names, f.Name)
	}

	if len(inputs) == 0 {
		return results
	}

	original := strings.Join(names, ", ")
	start := time.Now()
	path, err := guard(composerName, RouteImageToPDF, func() (string, error) {
		return d.composer.Compose(ctx, inputs, d.layout.Output)
	})
	metrics.ConversionDuration.WithLabelValues(string(RouteImageToPDF)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ConversionsTotal.WithLabelValues(string(RouteImageToPDF), "error").Inc()
		logging.Error("Merging %d images failed: %v", len(inputs), err)
		return append(results, Outcome{OriginalName: original, Error: converter.Message(err)})
	}

	metrics.ConversionsTotal.WithLabelValues(string(RouteImageToPDF), "success").Inc()
	logging.Info("Merged %d images into one PDF in %v", len(inputs), time.Since(start).Round(time.Millisecond))
	return append(results, d.register(ctx, original, mergedName, path))
}

// guard runs one conversion and turns a panic in it into a ToolFailed
// error, so a bad input fails its own file and nothing else.
func guard(tool string, route Route, fn func() (string, error)) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ConversionPanicsTotal.WithLabelValues(string(route)).Inc()
			logging.Error("%s panicked during %s: %v\n%s", tool, route, r, debug.Stack())
			path = ""
			err = &converter.ToolError{
				Tool: tool,
				Kind: converter.ErrToolFailed,
				Err:  fmt.Errorf("panic: %v", r),
			}
		}
	}()
	return fn()
}

// register records a converted file and builds its outcome. The file is
// deleted when it cannot be registered.
func (d *Dispatcher) register(ctx context.Context, original, convertedName, path string) Outcome {
	size, err := workdir.FileSize(path)
	if err != nil {
		logging.Error("Converted file %s vanished: %v", path, err)
		return Outcome{OriginalName: original, Error: "converted file could not be read"}
	}

	res := registry.Result{
		ID:            registry.NewID(),
		FilePath:      path,
		OriginalName:  original,
		ConvertedName: convertedName,
		ContentType:   formats.ContentTypeForPath(path),
		Size:          size,
		CreatedAt:     time.Now(),
	}
	if err := d.registry.Put(ctx, res); err != nil {
		logging.Error("Failed to register %s: %v", path, err)
		if rmErr := workdir.Remove(path); rmErr != nil {
			logging.Warn("Failed to remove unregistered output %s: %v", path, rmErr)
		}
		return Outcome{OriginalName: original, Error: "failed to store converted file"}
	}

	return Outcome{
		ID:            res.ID,
		OriginalName:  original,
		ConvertedName: res.ConvertedName,
		ContentType:   res.ContentType,
		Size:          res.Size,
		DownloadURL:   d.prefix + res.ID,
	}
}

// outputExt names the extension of the download: the target format, or
// zip when the adapter packaged several files.
func outputExt(path string, target formats.Format) string {
	if formats.ContentTypeForPath(path) == formats.ContentTypeZip {
		return "zip"
	}
	return string(target)
}
