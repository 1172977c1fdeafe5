package converter

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"snapconvert/internal/logging"
	"snapconvert/internal/workdir"
)

// DocumentAdapter converts office documents and text to PDF with a
// headless LibreOffice.
type DocumentAdapter struct {
	runner  *Runner
	tool    Tool
	timeout time.Duration
}

// NewDocumentAdapter creates the soffice adapter.
func NewDocumentAdapter(runner *Runner, path string, timeout time.Duration) *DocumentAdapter {
	return &DocumentAdapter{
		runner:  runner,
		tool:    Tool{Name: "soffice", Path: path},
		timeout: timeout,
	}
}

// Name implements Adapter.
func (a *DocumentAdapter) Name() string { return a.tool.Name }

// Available implements Adapter.
func (a *DocumentAdapter) Available(ctx context.Context) error {
	return a.runner.Check(ctx, a.tool, "--version")
}

// Convert implements Adapter.
func (a *DocumentAdapter) Convert(ctx context.Context, job Job) (string, error) {
	input, cleanup, err := workdir.WriteTemp(job.TempDir, string(job.InputFormat), bytes.NewReader(job.Input))
	if err != nil {
		return "", toolError(a.tool.Name, ErrToolFailed, err)
	}
	defer cleanup()

	// A private profile lets concurrent soffice instances run side by side.
	profile, err := filepath.Abs(filepath.Join(job.TempDir, "lo-"+uuid.NewString()))
	if err != nil {
		return "", toolError(a.tool.Name, ErrToolFailed, err)
	}
	defer func() {
		if err := workdir.RemoveAll(profile); err != nil {
			logging.Warn("Failed to remove soffice profile %s: %v", profile, err)
		}
	}()

	args := []string{
		"-env:UserInstallation=file://" + filepath.ToSlash(profile),
		"--headless",
		"--norestore",
		"--convert-to", "pdf",
		"--outdir", job.OutputDir,
		input,
	}
	if _, err := a.runner.Run(ctx, a.tool, timeoutFor(job, a.timeout), args...); err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	output := filepath.Join(job.OutputDir, base+".pdf")
	if err := requireOutput(a.tool.Name, output); err != nil {
		return "", err
	}

	logging.Debug("soffice converted %s to %s", filepath.Base(input), filepath.Base(output))
	return output, nil
}
