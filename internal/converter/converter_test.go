package converter

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"snapconvert/internal/formats"
	"snapconvert/internal/logging"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// writeScript installs a stand-in tool and returns its path.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	requireShell(t)
	path := filepath.Join(t.TempDir(), "tool.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func newJob(t *testing.T, in, out string, input []byte) Job {
	t.Helper()
	return Job{
		Input:        input,
		InputFormat:  formats.Format(in),
		OutputFormat: formats.Format(out),
		TempDir:      t.TempDir(),
		OutputDir:    t.TempDir(),
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected %s to be empty, found %v", dir, names)
	}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 200})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// =============================================================================
// Errors
// =============================================================================

func TestToolErrorUnwrap(t *testing.T) {
	cause := errors.New("exit status 1")
	err := error(&ToolError{Tool: "soffice", Kind: ErrToolFailed, Output: "boom", Err: cause})

	if !errors.Is(err, ErrToolFailed) {
		t.Error("expected errors.Is(err, ErrToolFailed)")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is(err, cause)")
	}
	if errors.Is(err, ErrToolTimeout) {
		t.Error("unexpected match on ErrToolTimeout")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("Error() = %q should include output", err.Error())
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unavailable", toolError("ffmpeg", ErrToolUnavailable, nil), "ffmpeg is not available on this server"},
		{"timeout", toolError("soffice", ErrToolTimeout, nil), "soffice conversion timed out"},
		{"failed", toolError("pdftoppm", ErrToolFailed, errors.New("secret path")), "pdftoppm conversion failed"},
		{"missing", toolError("ffmpeg", ErrOutputMissing, nil), "ffmpeg did not produce an output file"},
		{"plain", errors.New("plain"), "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Message(tt.err); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Runner
// =============================================================================

func TestRunnerMissingBinary(t *testing.T) {
	r := NewRunner(0)
	_, err := r.Run(context.Background(), Tool{Name: "ghost", Path: "definitely-not-a-real-tool-xyz"}, time.Second)
	if !errors.Is(err, ErrToolUnavailable) {
		t.Fatalf("err = %v, want ErrToolUnavailable", err)
	}

	if err := r.Check(context.Background(), Tool{Name: "ghost", Path: "definitely-not-a-real-tool-xyz"}); !errors.Is(err, ErrToolUnavailable) {
		t.Errorf("Check err = %v, want ErrToolUnavailable", err)
	}
}

func TestRunnerTimeout(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	r := NewRunner(time.Second)
	start := time.Now()
	_, err := r.Run(context.Background(), Tool{Name: "sleep", Path: "sleep"}, 100*time.Millisecond, "30")
	elapsed := time.Since(start)

	if !errors.Is(err, ErrToolTimeout) {
		t.Fatalf("err = %v, want ErrToolTimeout", err)
	}
	if elapsed > 5*time.Second {
		t.Errorf("timeout took %v, process was not terminated", elapsed)
	}
	if r.Active() != 0 {
		t.Errorf("Active() = %d after timeout, want 0", r.Active())
	}
}

func TestRunnerFailureCapturesOutput(t *testing.T) {
	script := writeScript(t, "echo 'bad input' >&2\nexit 3\n")

	r := NewRunner(0)
	_, err := r.Run(context.Background(), Tool{Name: "fake", Path: script}, 5*time.Second)

	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *ToolError", err)
	}
	if !errors.Is(err, ErrToolFailed) {
		t.Errorf("err = %v, want ErrToolFailed", err)
	}
	if te.Output != "bad input" {
		t.Errorf("Output = %q, want %q", te.Output, "bad input")
	}
}

func TestRunnerSuccess(t *testing.T) {
	script := writeScript(t, "echo \"hello $1\"\n")

	out, err := NewRunner(0).Run(context.Background(), Tool{Name: "fake", Path: script}, 5*time.Second, "world")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "hello world" {
		t.Errorf("output = %q, want %q", out, "hello world")
	}
}

func TestRunnerParentCancelIsNotTimeout(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := NewRunner(time.Second).Run(ctx, Tool{Name: "sleep", Path: "sleep"}, 10*time.Second, "30")
	if errors.Is(err, ErrToolTimeout) {
		t.Fatal("cancellation reported as timeout")
	}
	if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrToolFailed) {
		t.Errorf("err = %v, want ErrToolFailed wrapping context.Canceled", err)
	}
}

func TestBoundedBuffer(t *testing.T) {
	var b boundedBuffer
	chunk := bytes.Repeat([]byte("x"), maxCapturedOutput/2+10)

	for i := 0; i < 3; i++ {
		n, err := b.Write(chunk)
		if err != nil || n != len(chunk) {
			t.Fatalf("Write = (%d, %v)", n, err)
		}
	}
	if got := len(b.String()); got != maxCapturedOutput {
		t.Errorf("captured %d bytes, want %d", got, maxCapturedOutput)
	}
}

// =============================================================================
// Document adapter
// =============================================================================

const fakeSoffice = `out=""
in=""
while [ $# -gt 0 ]; do
  case "$1" in
    --outdir) out="$2"; shift ;;
    *) in="$1" ;;
  esac
  shift
done
b=$(basename "$in")
echo "%PDF-1.4 fake" > "$out/${b%.*}.pdf"
`

func TestDocumentAdapterConvert(t *testing.T) {
	a := NewDocumentAdapter(NewRunner(0), writeScript(t, fakeSoffice), 5*time.Second)
	job := newJob(t, "docx", "pdf", []byte("document body"))

	output, err := a.Convert(context.Background(), job)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if filepath.Dir(output) != job.OutputDir || filepath.Ext(output) != ".pdf" {
		t.Errorf("unexpected output path %s", output)
	}
	data, err := os.ReadFile(output)
	if err != nil || !strings.HasPrefix(string(data), "%PDF") {
		t.Errorf("output content = %q, %v", data, err)
	}

	assertEmptyDir(t, job.TempDir)
}

func TestDocumentAdapterFailures(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		timeout time.Duration
		want    error
	}{
		{"non-zero exit", "echo 'source file could not be loaded' >&2\nexit 1\n", 5 * time.Second, ErrToolFailed},
		{"no output", "exit 0\n", 5 * time.Second, ErrOutputMissing},
		{"hang", "exec sleep 30\n", 200 * time.Millisecond, ErrToolTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewDocumentAdapter(NewRunner(time.Second), writeScript(t, tt.script), tt.timeout)
			job := newJob(t, "docx", "pdf", []byte("x"))

			_, err := a.Convert(context.Background(), job)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			assertEmptyDir(t, job.TempDir)
			assertEmptyDir(t, job.OutputDir)
		})
	}
}

func TestDocumentAdapterUnavailable(t *testing.T) {
	a := NewDocumentAdapter(NewRunner(0), "no-such-soffice-binary", time.Second)
	job := newJob(t, "docx", "pdf", []byte("x"))

	if err := a.Available(context.Background()); !errors.Is(err, ErrToolUnavailable) {
		t.Errorf("Available err = %v, want ErrToolUnavailable", err)
	}
	if _, err := a.Convert(context.Background(), job); !errors.Is(err, ErrToolUnavailable) {
		t.Errorf("Convert err = %v, want ErrToolUnavailable", err)
	}
	assertEmptyDir(t, job.TempDir)
}

// =============================================================================
// Raster adapter
// =============================================================================

// fakePdftoppm writes $PAGES pages using the prefix argument.
func fakePdftoppm(pages int, ext string) string {
	var b strings.Builder
	b.WriteString("for last; do :; done\n")
	for i := 1; i <= pages; i++ {
		b.WriteString("echo page > \"$last-" + string(rune('0'+i)) + "." + ext + "\"\n")
	}
	return b.String()
}

func TestRasterAdapterSinglePage(t *testing.T) {
	a := NewRasterAdapter(NewRunner(0), writeScript(t, fakePdftoppm(1, "png")), 5*time.Second, 150)
	job := newJob(t, "pdf", "png", []byte("%PDF"))

	output, err := a.Convert(context.Background(), job)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if filepath.Ext(output) != ".png" {
		t.Errorf("output = %s, want a .png", output)
	}

	entries, _ := os.ReadDir(job.OutputDir)
	if len(entries) != 1 {
		t.Errorf("output dir has %d entries, want 1", len(entries))
	}
	assertEmptyDir(t, job.TempDir)
}

func TestRasterAdapterMultiPageArchive(t *testing.T) {
	a := NewRasterAdapter(NewRunner(0), writeScript(t, fakePdftoppm(3, "jpg")), 5*time.Second, 150)
	job := newJob(t, "pdf", "jpeg", []byte("%PDF"))

	output, err := a.Convert(context.Background(), job)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if filepath.Ext(output) != ".zip" {
		t.Fatalf("output = %s, want a .zip", output)
	}

	zr, err := zip.OpenReader(output)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer func() { _ = zr.Close() }()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	want := []string{"page-1.jpg", "page-2.jpg", "page-3.jpg"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("archive entries = %v, want %v", names, want)
	}

	// Only the archive remains; the page images are deleted.
	entries, _ := os.ReadDir(job.OutputDir)
	if len(entries) != 1 {
		t.Errorf("output dir has %d entries, want 1", len(entries))
	}
}

func TestRasterAdapterNoPages(t *testing.T) {
	a := NewRasterAdapter(NewRunner(0), writeScript(t, "exit 0\n"), 5*time.Second, 150)
	job := newJob(t, "pdf", "png", []byte("%PDF"))

	if _, err := a.Convert(context.Background(), job); !errors.Is(err, ErrOutputMissing) {
		t.Errorf("err = %v, want ErrOutputMissing", err)
	}
}

func TestRasterMode(t *testing.T) {
	tests := []struct {
		target   string
		flag     string
		ext      string
		wantFail bool
	}{
		{"png", "-png", "png", false},
		{"jpeg", "-jpeg", "jpg", false},
		{"jpg", "-jpeg", "jpg", false},
		{"webp", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			flag, ext, err := rasterMode(formatOf(tt.target))
			if (err != nil) != tt.wantFail {
				t.Fatalf("err = %v, wantFail %v", err, tt.wantFail)
			}
			if flag != tt.flag || ext != tt.ext {
				t.Errorf("rasterMode = (%q, %q), want (%q, %q)", flag, ext, tt.flag, tt.ext)
			}
		})
	}
}

// =============================================================================
// Video adapter
// =============================================================================

func TestVideoAdapterConvert(t *testing.T) {
	script := writeScript(t, "for last; do :; done\necho video > \"$last\"\n")
	a := NewVideoAdapter(NewRunner(0), script, 5*time.Second)
	job := newJob(t, "mp4", "webm", []byte("video"))

	output, err := a.Convert(context.Background(), job)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if filepath.Ext(output) != ".webm" {
		t.Errorf("output = %s, want .webm", output)
	}
	assertEmptyDir(t, job.TempDir)
}

func TestVideoAdapterTimeoutRemovesPartialOutput(t *testing.T) {
	script := writeScript(t, "for last; do :; done\necho partial > \"$last\"\nexec sleep 30\n")
	a := NewVideoAdapter(NewRunner(time.Second), script, 5*time.Second)
	job := newJob(t, "mov", "mp4", []byte("video"))
	job.Timeout = 200 * time.Millisecond

	if _, err := a.Convert(context.Background(), job); !errors.Is(err, ErrToolTimeout) {
		t.Fatalf("err = %v, want ErrToolTimeout", err)
	}
	assertEmptyDir(t, job.TempDir)
	assertEmptyDir(t, job.OutputDir)
}

// =============================================================================
// Image adapter and PDF composer
// =============================================================================

func TestImageAdapterQuality(t *testing.T) {
	a := NewImageAdapter()
	tests := map[string]int{"jpeg": 80, "JPG": 80, "png": 80, "webp": 80, "tiff": 90, "bmp": 80}
	for format, want := range tests {
		if got := a.Quality(formatOf(format)); got != want {
			t.Errorf("Quality(%s) = %d, want %d", format, got, want)
		}
	}
}

func TestImageAdapterConvertFallback(t *testing.T) {
	if IsVipsAvailable() {
		t.Skip("libvips initialized; fallback path not in use")
	}

	a := NewImageAdapter()
	tests := []struct {
		target     string
		wantFormat string
	}{
		{"jpeg", "jpeg"},
		{"jpg", "jpeg"},
		{"png", "png"},
		{"tiff", "tiff"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			job := newJob(t, "png", tt.target, testPNG(t, 8, 6))

			output, err := a.Convert(context.Background(), job)
			if err != nil {
				t.Fatalf("Convert: %v", err)
			}
			if filepath.Ext(output) != "."+tt.target {
				t.Errorf("output = %s, want .%s", output, tt.target)
			}

			f, err := os.Open(output)
			if err != nil {
				t.Fatal(err)
			}
			defer func() { _ = f.Close() }()

			cfg, format, err := image.DecodeConfig(f)
			if err != nil {
				t.Fatalf("decode output: %v", err)
			}
			if format != tt.wantFormat || cfg.Width != 8 || cfg.Height != 6 {
				t.Errorf("output = %s %dx%d, want %s 8x6", format, cfg.Width, cfg.Height, tt.wantFormat)
			}
		})
	}
}

func TestImageAdapterWebPNeedsVips(t *testing.T) {
	if IsVipsAvailable() {
		t.Skip("libvips initialized")
	}
	_, err := NewImageAdapter().Transcode(testPNG(t, 2, 2), "webp")
	if !errors.Is(err, ErrToolUnavailable) {
		t.Errorf("err = %v, want ErrToolUnavailable", err)
	}
}

func TestImageAdapterCorruptInput(t *testing.T) {
	_, err := NewImageAdapter().Transcode([]byte("not an image"), "png")
	if !errors.Is(err, ErrToolFailed) {
		t.Errorf("err = %v, want ErrToolFailed", err)
	}
}

func TestComposeBuildsOnePagePerImage(t *testing.T) {
	c := NewComposeAdapter(NewImageAdapter())

	doc, err := c.build(context.Background(), [][]byte{testPNG(t, 40, 20), testPNG(t, 10, 30), testPNG(t, 5, 5)})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := doc.PageCount(); got != 3 {
		t.Errorf("PageCount() = %d, want 3", got)
	}
}

func TestComposeWritesPDF(t *testing.T) {
	c := NewComposeAdapter(NewImageAdapter())
	job := newJob(t, "png", "pdf", testPNG(t, 12, 12))

	output, err := c.Convert(context.Background(), job)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	data, err := os.ReadFile(output)
	if err != nil || !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("output is not a PDF (err %v)", err)
	}
}

func TestComposeErrors(t *testing.T) {
	c := NewComposeAdapter(NewImageAdapter())

	if _, err := c.build(context.Background(), nil); !errors.Is(err, ErrOutputMissing) {
		t.Errorf("empty input err = %v, want ErrOutputMissing", err)
	}
	if _, err := c.build(context.Background(), [][]byte{[]byte("junk")}); !errors.Is(err, ErrToolFailed) {
		t.Errorf("corrupt input err = %v, want ErrToolFailed", err)
	}
}

func TestFitCentered(t *testing.T) {
	const pageW, pageH, margin = 595.28, 841.89, 50.0
	availW, availH := pageW-2*margin, pageH-2*margin

	tests := []struct {
		name string
		w, h float64
	}{
		{"landscape", 4000, 1000},
		{"portrait", 1000, 4000},
		{"tiny", 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, fw, fh := fitCentered(tt.w, tt.h, pageW, pageH, margin)

			if fw > availW+1e-6 || fh > availH+1e-6 {
				t.Errorf("%vx%v does not fit in %vx%v", fw, fh, availW, availH)
			}
			if diff := fw/fh - tt.w/tt.h; diff > 1e-6 || diff < -1e-6 {
				t.Errorf("aspect ratio changed: %v vs %v", fw/fh, tt.w/tt.h)
			}
			if dx := (x - margin) - (availW - fw - (x - margin)); dx > 1e-6 || dx < -1e-6 {
				t.Errorf("not centered horizontally: x=%v w=%v", x, fw)
			}
			if dy := (y - margin) - (availH - fh - (y - margin)); dy > 1e-6 || dy < -1e-6 {
				t.Errorf("not centered vertically: y=%v h=%v", y, fh)
			}
		})
	}
}

func TestNewSetDefaults(t *testing.T) {
	s := NewSet(Config{SofficePath: "soffice", PdftoppmPath: "pdftoppm", FFmpegPath: "ffmpeg"})

	if s.Document.timeout != DefaultTimeout || s.Video.timeout != DefaultTimeout {
		t.Errorf("timeouts not defaulted: %v %v", s.Document.timeout, s.Video.timeout)
	}
	if s.Raster.dpi != 150 {
		t.Errorf("dpi = %d, want 150", s.Raster.dpi)
	}
	if len(s.All()) != 5 {
		t.Errorf("All() returned %d adapters, want 5", len(s.All()))
	}

	status := s.Check(context.Background())
	for _, name := range []string{"soffice", "pdftoppm", "ffmpeg", "image", "pdf-composer"} {
		if _, ok := status[name]; !ok {
			t.Errorf("Check missing %s", name)
		}
	}
	if status["image"] != nil || status["pdf-composer"] != nil {
		t.Error("in-process adapters should always be available")
	}
}

func formatOf(s string) formats.Format { return formats.Format(s) }

func TestRemoveOutputLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	origOutput := log.Writer()
	origLevel := logging.GetLevel()
	log.SetOutput(&buf)
	logging.SetLevel(logging.LevelWarn)
	defer func() {
		log.SetOutput(origOutput)
		logging.SetLevel(origLevel)
	}()

	// A non-empty directory cannot be removed with os.Remove.
	dir := t.TempDir()
	busy := filepath.Join(dir, "busy")
	if err := os.MkdirAll(filepath.Join(busy, "child"), 0o755); err != nil {
		t.Fatal(err)
	}

	removeOutput(filepath.Join(dir, "missing.pdf"))
	if buf.Len() != 0 {
		t.Errorf("missing file logged %q", buf.String())
	}

	removeOutput(busy)
	if !strings.Contains(buf.String(), "Failed to remove "+busy) {
		t.Errorf("log = %q, want a removal warning", buf.String())
	}

	file := filepath.Join(dir, "partial.png")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	removeAll([]string{file})
	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Errorf("partial output still present: %v", err)
	}
}

func TestRequireOutputRemovesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.pdf")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	if err := requireOutput("fake", path); !errors.Is(err, ErrOutputMissing) {
		t.Fatalf("err = %v, want ErrOutputMissing", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("empty output still present: %v", err)
	}
}
