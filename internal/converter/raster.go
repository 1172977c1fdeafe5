package converter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"snapconvert/internal/formats"
	"snapconvert/internal/logging"
	"snapconvert/internal/workdir"
)

// RasterAdapter renders PDF pages to PNG or JPEG with poppler's pdftoppm.
// A single page is returned as is; several pages are packed into a zip.
type RasterAdapter struct {
	runner  *Runner
	tool    Tool
	timeout time.Duration
	dpi     int
}

// NewRasterAdapter creates the pdftoppm adapter.
func NewRasterAdapter(runner *Runner, path string, timeout time.Duration, dpi int) *RasterAdapter {
	return &RasterAdapter{
		runner:  runner,
		tool:    Tool{Name: "pdftoppm", Path: path},
		timeout: timeout,
		dpi:     dpi,
	}
}

// Name implements Adapter.
func (a *RasterAdapter) Name() string { return a.tool.Name }

// Available implements Adapter.
func (a *RasterAdapter) Available(ctx context.Context) error {
	return a.runner.Check(ctx, a.tool, "-v")
}

// Convert implements Adapter.
func (a *RasterAdapter) Convert(ctx context.Context, job Job) (string, error) {
	modeFlag, pageExt, err := rasterMode(job.OutputFormat)
	if err != nil {
		return "", toolError(a.tool.Name, ErrToolFailed, err)
	}

	input, cleanup, err := workdir.WriteTemp(job.TempDir, "pdf", bytes.NewReader(job.Input))
	if err != nil {
		return "", toolError(a.tool.Name, ErrToolFailed, err)
	}
	defer cleanup()

	prefix := filepath.Join(job.OutputDir, uuid.NewString())
	args := []string{"-r", strconv.Itoa(a.dpi), modeFlag, input, prefix}

	_, runErr := a.runner.Run(ctx, a.tool, timeoutFor(job, a.timeout), args...)
	pages, globErr := collectPages(prefix, pageExt)
	if runErr != nil {
		removeAll(pages)
		return "", runErr
	}
	if globErr != nil {
		return "", toolError(a.tool.Name, ErrToolFailed, globErr)
	}

	switch len(pages) {
	case 0:
		return "", toolError(a.tool.Name, ErrOutputMissing, fmt.Errorf("no pages rendered"))
	case 1:
		output := prefix + "." + pageExt
		if err := os.Rename(pages[0], output); err != nil {
			removeAll(pages)
			return "", toolError(a.tool.Name, ErrToolFailed, err)
		}
		return output, nil
	}

	archive := prefix + ".zip"
	err = writeArchive(archive, pages, filepath.Base(prefix)+"-", "page-")
	removeAll(pages)
	if err != nil {
		removeOutput(archive)
		return "", toolError(a.tool.Name, ErrToolFailed, fmt.Errorf("package pages: %w", err))
	}

	logging.Debug("pdftoppm rendered %d pages into %s", len(pages), filepath.Base(archive))
	return archive, nil
}

// rasterMode maps a target format to the pdftoppm flag and the extension
// pdftoppm writes for it.
func rasterMode(target formats.Format) (flag string, ext string, err error) {
	switch target {
	case "png":
		return "-png", "png", nil
	case "jpeg", "jpg":
		return "-jpeg", "jpg", nil
	}
	return "", "", fmt.Errorf("cannot rasterize to %s", target)
}

// collectPages finds prefix-N.ext files. pdftoppm zero-pads page numbers to
// a common width, so lexical order is page order.
func collectPages(prefix, ext string) ([]string, error) {
	pages, err := filepath.Glob(prefix + "-*." + ext)
	if err != nil {
		return nil, err
	}
	sort.Strings(pages)
	return pages, nil
}

// writeArchive packs files into a zip at path, renaming each entry by
// swapping trimPrefix for entryPrefix.
func writeArchive(path string, files []string, trimPrefix, entryPrefix string) (err error) {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	zw := zip.NewWriter(out)
	for _, file := range files {
		name := entryPrefix + strings.TrimPrefix(filepath.Base(file), trimPrefix)
		if err := addToArchive(zw, file, name); err != nil {
			_ = zw.Close()
			return err
		}
	}
	return zw.Close()
}

func addToArchive(zw *zip.Writer, file, name string) error {
	in, err := os.Open(file)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}
