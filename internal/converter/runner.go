package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"snapconvert/internal/logging"
	"snapconvert/internal/metrics"
)

const (
	// maxCapturedOutput bounds the diagnostics kept from a tool run.
	maxCapturedOutput = 16 * 1024

	// DefaultKillGrace is how long a tool gets to exit after SIGTERM
	// before it is killed.
	DefaultKillGrace = 5 * time.Second

	checkTimeout = 10 * time.Second
	cleanupPoll  = 20 * time.Millisecond
)

// errStopped is the cause recorded for runs ended by Cleanup.
var errStopped = errors.New("stopped by shutdown")

// Tool identifies an external binary.
type Tool struct {
	// Name is the stable label used in errors, logs and metrics.
	Name string
	// Path is the binary name or absolute path.
	Path string
}

// Runner executes external tools under a deadline and keeps track of the
// live processes so they can be stopped on shutdown.
type Runner struct {
	killGrace time.Duration

	processMu sync.Mutex
	processes map[*exec.Cmd]process
}

type process struct {
	name   string
	cancel context.CancelFunc
}

// NewRunner creates a Runner. A zero killGrace uses DefaultKillGrace.
func NewRunner(killGrace time.Duration) *Runner {
	if killGrace <= 0 {
		killGrace = DefaultKillGrace
	}
	return &Runner{
		killGrace: killGrace,
		processes: make(map[*exec.Cmd]process),
	}
}

// Run executes tool with args and waits for it, up to timeout. The
// combined output is returned on success and attached to the error
// otherwise. The tool runs in its own process group: on expiry the group
// receives SIGTERM, and once the tool has exited, or killGrace has passed,
// whatever is left of the group is killed.
func (r *Runner) Run(ctx context.Context, tool Tool, timeout time.Duration, args ...string) (string, error) {
	binary, err := exec.LookPath(tool.Path)
	if err != nil {
		metrics.ToolInvocationsTotal.WithLabelValues(tool.Name, "unavailable").Inc()
		return "", toolError(tool.Name, ErrToolUnavailable, err)
	}

	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	cmd := exec.CommandContext(runCtx, binary, args...)
	setProcessGroup(cmd)
	cmd.Cancel = func() error {
		return signalGroup(cmd, syscall.SIGTERM)
	}
	cmd.WaitDelay = r.killGrace

	var output boundedBuffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	logging.Debug("Running %s %s", tool.Name, strings.Join(args, " "))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		metrics.ToolInvocationsTotal.WithLabelValues(tool.Name, "unavailable").Inc()
		return "", toolError(tool.Name, ErrToolUnavailable, err)
	}

	r.track(cmd, tool.Name, cancel)
	err = cmd.Wait()
	r.killGroup(cmd, tool.Name)
	r.untrack(cmd)

	metrics.ToolDuration.WithLabelValues(tool.Name).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.ToolInvocationsTotal.WithLabelValues(tool.Name, "success").Inc()
		return output.String(), nil
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		metrics.ToolInvocationsTotal.WithLabelValues(tool.Name, "timeout").Inc()
		logging.Warn("%s exceeded %v and was terminated", tool.Name, timeout)
		return "", &ToolError{
			Tool:   tool.Name,
			Kind:   ErrToolTimeout,
			Output: output.String(),
			Err:    fmt.Errorf("no result after %v", timeout),
		}
	}

	metrics.ToolInvocationsTotal.WithLabelValues(tool.Name, "failed").Inc()
	switch {
	case ctx.Err() != nil:
		err = ctx.Err()
	case runCtx.Err() != nil:
		err = errStopped
	}
	logging.Error("%s failed: %v: %s", tool.Name, err, output.String())
	return "", &ToolError{
		Tool:   tool.Name,
		Kind:   ErrToolFailed,
		Output: output.String(),
		Err:    err,
	}
}

// killGroup kills anything the tool left behind in its process group.
func (r *Runner) killGroup(cmd *exec.Cmd, name string) {
	if err := signalGroup(cmd, syscall.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
		logging.Warn("failed to kill %s process group: %v", name, err)
	}
}

// Check checks that tool is installed and answers a version query.
func (r *Runner) Check(ctx context.Context, tool Tool, args ...string) error {
	_, err := r.Run(ctx, tool, checkTimeout, args...)
	if err == nil || errors.Is(err, ErrToolUnavailable) {
		return err
	}
	return &ToolError{Tool: tool.Name, Kind: ErrToolUnavailable, Err: err}
}

func (r *Runner) track(cmd *exec.Cmd, name string, cancel context.CancelFunc) {
	r.processMu.Lock()
	r.processes[cmd] = process{name: name, cancel: cancel}
	r.processMu.Unlock()
}

func (r *Runner) untrack(cmd *exec.Cmd) {
	r.processMu.Lock()
	delete(r.processes, cmd)
	r.processMu.Unlock()
}

// Active returns the number of tool processes currently running.
func (r *Runner) Active() int {
	r.processMu.Lock()
	defer r.processMu.Unlock()
	return len(r.processes)
}

// Cleanup stops every running tool and waits for the runs to return. Each
// process group gets SIGTERM, then SIGKILL after the grace period.
func (r *Runner) Cleanup() {
	r.processMu.Lock()
	for cmd, p := range r.processes {
		logging.Info("Stopping %s process (pid %d)", p.name, cmd.Process.Pid)
		p.cancel()
	}
	r.processMu.Unlock()

	deadline := time.Now().Add(r.killGrace + time.Second)
	for r.Active() > 0 && time.Now().Before(deadline) {
		time.Sleep(cleanupPoll)
	}
	if n := r.Active(); n > 0 {
		logging.Warn("%d tool processes still running after cleanup", n)
	}
}

// boundedBuffer keeps the first maxCapturedOutput bytes written to it.
type boundedBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := maxCapturedOutput - len(b.buf); room > 0 {
		if len(p) > room {
			b.buf = append(b.buf, p[:room]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
