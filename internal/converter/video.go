package converter

import (
	"bytes"
	"context"
	"time"

	"snapconvert/internal/workdir"
)

// VideoAdapter remuxes and transcodes between video containers with ffmpeg.
type VideoAdapter struct {
	runner  *Runner
	tool    Tool
	timeout time.Duration
}

// NewVideoAdapter creates the ffmpeg adapter.
func NewVideoAdapter(runner *Runner, path string, timeout time.Duration) *VideoAdapter {
	return &VideoAdapter{
		runner:  runner,
		tool:    Tool{Name: "ffmpeg", Path: path},
		timeout: timeout,
	}
}

// Name implements Adapter.
func (a *VideoAdapter) Name() string { return a.tool.Name }

// Available implements Adapter.
func (a *VideoAdapter) Available(ctx context.Context) error {
	return a.runner.Check(ctx, a.tool, "-version")
}

// Convert implements Adapter. ffmpeg picks codecs from the output
// container's defaults.
func (a *VideoAdapter) Convert(ctx context.Context, job Job) (string, error) {
	input, cleanup, err := workdir.WriteTemp(job.TempDir, string(job.InputFormat), bytes.NewReader(job.Input))
	if err != nil {
		return "", toolError(a.tool.Name, ErrToolFailed, err)
	}
	defer cleanup()

	output := outputPath(job.OutputDir, string(job.OutputFormat))
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", input,
		output,
	}
	if _, err := a.runner.Run(ctx, a.tool, timeoutFor(job, a.timeout), args...); err != nil {
		removeOutput(output)
		return "", err
	}

	if err := requireOutput(a.tool.Name, output); err != nil {
		return "", err
	}
	return output, nil
}
