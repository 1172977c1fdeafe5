package dispatcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"snapconvert/internal/converter"
	"snapconvert/internal/formats"
	"snapconvert/internal/registry"
	"snapconvert/internal/workdir"
)

// fakeAdapter writes a small output file, fails with err, or panics with
// panicValue.
type fakeAdapter struct {
	name       string
	ext        string
	err        error
	panicValue any

	mu   sync.Mutex
	jobs []converter.Job
}

func (f *fakeAdapter) Name() string                      { return f.name }
func (f *fakeAdapter) Available(_ context.Context) error { return nil }

func (f *fakeAdapter) Convert(_ context.Context, job converter.Job) (string, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()

	if f.panicValue != nil {
		panic(f.panicValue)
	}
	if f.err != nil {
		return "", f.err
	}
	ext := f.ext
	if ext == "" {
		ext = string(job.OutputFormat)
	}
	path := filepath.Join(job.OutputDir, registry.NewID()+"."+ext)
	if err := os.WriteFile(path, job.Input, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

type fakeComposer struct {
	inputs     [][]byte
	err        error
	panicValue any
}

func (c *fakeComposer) Compose(_ context.Context, inputs [][]byte, outputDir string) (string, error) {
	c.inputs = inputs
	if c.panicValue != nil {
		panic(c.panicValue)
	}
	if c.err != nil {
		return "", c.err
	}
	path := filepath.Join(outputDir, registry.NewID()+".pdf")
	return path, os.WriteFile(path, []byte("%PDF"), 0o600)
}

type failingRegistrar struct{}

func (failingRegistrar) Put(context.Context, registry.Result) error {
	return errors.New("backend down")
}

type fixture struct {
	d        *Dispatcher
	reg      *registry.Registry
	layout   workdir.Layout
	adapters map[Route]*fakeAdapter
	composer *fakeComposer
}

func newFixture(t *testing.T, override func(*Config)) *fixture {
	t.Helper()

	layout := workdir.NewLayout(t.TempDir())
	if err := layout.Ensure(); err != nil {
		t.Fatal(err)
	}

	fakes := map[Route]*fakeAdapter{}
	adapters := map[Route]converter.Adapter{}
	for _, r := range Routes {
		fakes[r] = &fakeAdapter{name: string(r)}
		adapters[r] = fakes[r]
	}

	reg := registry.New(registry.NewMemoryStore(), registry.BackendMemory)
	composer := &fakeComposer{}
	cfg := Config{
		Adapters:    adapters,
		Composer:    composer,
		Registry:    reg,
		Layout:      layout,
		MaxFileSize: 1024,
		Workers:     2,
	}
	if override != nil {
		override(&cfg)
	}

	return &fixture{d: New(cfg), reg: reg, layout: layout, adapters: fakes, composer: composer}
}

func file(name, contentType, data string) File {
	return File{Name: name, ContentType: contentType, Data: []byte(data)}
}

func TestHandleBatchPartialSuccess(t *testing.T) {
	fx := newFixture(t, nil)
	ctx := context.Background()

	batch, err := fx.d.HandleBatch(ctx, Request{
		Target: "PDF",
		Files: []File{
			file("photo one.png", "image/png", "png-bytes"),
			file("clip.mp4", "video/mp4", "video-bytes"),
			file("notes.docx", "", "docx-bytes"),
		},
	})
	if err != nil {
		t.Fatalf("HandleBatch: %v", err)
	}

	if !batch.Success || batch.Converted != 2 || len(batch.Results) != 3 {
		t.Fatalf("batch = %+v", batch)
	}
	if batch.Message != "Converted 2 of 3 files" {
		t.Errorf("Message = %q", batch.Message)
	}

	first, second, third := batch.Results[0], batch.Results[1], batch.Results[2]
	if !first.OK() || first.OriginalName != "photo one.png" || first.ConvertedName != "photo_one.pdf" {
		t.Errorf("first = %+v", first)
	}
	if first.ContentType != "application/pdf" || first.Size != int64(len("png-bytes")) {
		t.Errorf("first metadata = %+v", first)
	}
	if first.DownloadURL != "/api/download/"+first.ID || !registry.ValidID(first.ID) {
		t.Errorf("first download = %q (id %q)", first.DownloadURL, first.ID)
	}
	if second.OK() || second.OriginalName != "clip.mp4" || !strings.Contains(second.Error, "mp4 to pdf") {
		t.Errorf("second = %+v", second)
	}
	if !third.OK() || third.ConvertedName != "notes.pdf" {
		t.Errorf("third = %+v", third)
	}

	if n := fx.reg.Len(); n != 2 {
		t.Errorf("registry has %d entries, want 2", n)
	}
	if n := len(fx.adapters[RouteVideoToVideo].jobs); n != 0 {
		t.Errorf("illegal pair reached an adapter %d times", n)
	}

	res, err := fx.reg.Get(ctx, first.ID)
	if err != nil || filepath.Dir(res.FilePath) != fx.layout.Output {
		t.Errorf("registered result = (%+v, %v)", res, err)
	}
}

func TestHandleBatchRoutesByFamily(t *testing.T) {
	tests := []struct {
		file   File
		target string
		route  Route
	}{
		{file("a.xlsx", "", "x"), "pdf", RouteDocumentToPDF},
		{file("a.gif", "image/gif", "x"), "pdf", RouteImageToPDF},
		{file("a.pdf", "application/pdf", "x"), "jpeg", RoutePDFToImage},
		{file("a.bmp", "image/bmp", "x"), "png", RouteImageToImage},
		{file("a.mkv", "video/x-matroska", "x"), "webm", RouteVideoToVideo},
	}

	for _, tt := range tests {
		t.Run(string(tt.route), func(t *testing.T) {
			fx := newFixture(t, nil)
			batch, err := fx.d.HandleBatch(context.Background(), Request{Files: []File{tt.file}, Target: tt.target})
			if err != nil || !batch.Results[0].OK() {
				t.Fatalf("batch = (%+v, %v)", batch, err)
			}

			for route, a := range fx.adapters {
				want := 0
				if route == tt.route {
					want = 1
				}
				if len(a.jobs) != want {
					t.Errorf("%s called %d times, want %d", route, len(a.jobs), want)
				}
			}

			job := fx.adapters[tt.route].jobs[0]
			if job.TempDir != fx.layout.Input || job.OutputDir != fx.layout.Output {
				t.Errorf("job dirs = (%s, %s)", job.TempDir, job.OutputDir)
			}
		})
	}
}

func TestHandleBatchAdapterFailureIsolated(t *testing.T) {
	fx := newFixture(t, nil)
	fx.adapters[RouteDocumentToPDF].err = &converter.ToolError{
		Tool: "soffice", Kind: converter.ErrToolTimeout, Output: "/secret/path",
	}

	batch, err := fx.d.HandleBatch(context.Background(), Request{
		Target: "pdf",
		Files: []File{
			file("a.docx", "", "x"),
			file("b.jpg", "image/jpeg", "y"),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if batch.Results[0].Error != "soffice conversion timed out" {
		t.Errorf("failure message = %q", batch.Results[0].Error)
	}
	if !batch.Results[1].OK() {
		t.Errorf("sibling failed: %+v", batch.Results[1])
	}
	if !batch.Success || batch.Converted != 1 {
		t.Errorf("batch = %+v", batch)
	}
}

func TestHandleBatchAdapterPanicIsolated(t *testing.T) {
	fx := newFixture(t, nil)
	fx.adapters[RouteImageToImage].panicValue = "corrupt header"

	batch, err := fx.d.HandleBatch(context.Background(), Request{
		Target: "png",
		Files: []File{
			file("a.jpg", "image/jpeg", "x"),
			file("b.gif", "image/gif", "y"),
			file("c.bmp", "image/bmp", "z"),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(batch.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(batch.Results))
	}
	for _, r := range batch.Results {
		if r.Error != string(RouteImageToImage)+" conversion failed" {
			t.Errorf("%s: error = %q", r.OriginalName, r.Error)
		}
	}
	if !batch.Success || batch.Converted != 0 {
		t.Errorf("batch = %+v", batch)
	}
}

func TestHandleBatchPanicLeavesSiblings(t *testing.T) {
	fx := newFixture(t, nil)
	fx.adapters[RouteDocumentToPDF].panicValue = errors.New("nil map write")

	batch, err := fx.d.HandleBatch(context.Background(), Request{
		Target: "pdf",
		Files: []File{
			file("a.jpg", "image/jpeg", "x"),
			file("b.docx", "", "y"),
			file("c.png", "image/png", "z"),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if !batch.Results[0].OK() || !batch.Results[2].OK() {
		t.Errorf("siblings failed: %+v", batch.Results)
	}
	if batch.Results[1].OK() || batch.Results[1].OriginalName != "b.docx" {
		t.Errorf("panicking file = %+v", batch.Results[1])
	}
	if batch.Converted != 2 {
		t.Errorf("Converted = %d, want 2", batch.Converted)
	}
}

func TestHandleBatchMergePanic(t *testing.T) {
	fx := newFixture(t, nil)
	fx.composer.panicValue = "bad image"

	batch, err := fx.d.HandleBatch(context.Background(), Request{
		Target: "pdf",
		Merge:  true,
		Files:  []File{file("one.png", "image/png", "x")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if batch.Converted != 0 || batch.Results[0].Error != "pdf-composer conversion failed" {
		t.Errorf("batch = %+v", batch)
	}
}

func TestHandleBatchPerFileValidation(t *testing.T) {
	fx := newFixture(t, nil)

	batch, err := fx.d.HandleBatch(context.Background(), Request{
		Target: "png",
		Files: []File{
			file("setup.exe", "application/octet-stream", "x"),
			file("photo.jpg", "image/png", "x"),
			file("README", "text/plain", "x"),
			file("big.jpg", "image/jpeg", strings.Repeat("x", 2048)),
			file("photo.jpg", "image/jpeg", "x"),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	wantErrors := []string{"unsupported file type", "content type mismatch", "extension", "maximum allowed size", ""}
	for i, want := range wantErrors {
		got := batch.Results[i]
		if want == "" {
			if !got.OK() {
				t.Errorf("result %d failed: %s", i, got.Error)
			}
			continue
		}
		if got.OK() || !strings.Contains(got.Error, want) {
			t.Errorf("result %d error = %q, want substring %q", i, got.Error, want)
		}
	}
	if batch.Converted != 1 {
		t.Errorf("Converted = %d, want 1", batch.Converted)
	}
}

func TestHandleBatchBlockingErrors(t *testing.T) {
	fx := newFixture(t, nil)
	one := []File{file("a.png", "image/png", "x")}

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"no files", Request{Target: "pdf"}, ErrNoFiles},
		{"no target", Request{Files: one, Target: "  "}, ErrNoTarget},
		{"merge to image", Request{Files: one, Target: "png", Merge: true}, ErrMergeTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := fx.d.HandleBatch(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHandleBatchMerge(t *testing.T) {
	fx := newFixture(t, nil)

	batch, err := fx.d.HandleBatch(context.Background(), Request{
		Target: "pdf",
		Merge:  true,
		Files: []File{
			file("one.png", "image/png", "first"),
			file("doc.docx", "", "doc"),
			file("two.webp", "image/webp", "second"),
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(batch.Results) != 2 {
		t.Fatalf("results = %+v", batch.Results)
	}
	if batch.Results[0].OriginalName != "doc.docx" || batch.Results[0].OK() {
		t.Errorf("docx should be rejected: %+v", batch.Results[0])
	}
	merged := batch.Results[1]
	if !merged.OK() || merged.ConvertedName != "merged.pdf" || merged.OriginalName != "one.png, two.webp" {
		t.Errorf("merged = %+v", merged)
	}

	if len(fx.composer.inputs) != 2 || string(fx.composer.inputs[0]) != "first" || string(fx.composer.inputs[1]) != "second" {
		t.Errorf("composer inputs out of order: %q", fx.composer.inputs)
	}
	if len(fx.adapters[RouteImageToPDF].jobs) != 0 {
		t.Error("merge used the per-file adapter")
	}
}

func TestHandleBatchMergeFailure(t *testing.T) {
	fx := newFixture(t, nil)
	fx.composer.err = &converter.ToolError{Tool: "pdf-composer", Kind: converter.ErrToolFailed}

	batch, err := fx.d.HandleBatch(context.Background(), Request{
		Target: "pdf",
		Merge:  true,
		Files:  []File{file("one.png", "image/png", "x")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if batch.Converted != 0 || batch.Results[0].Error != "pdf-composer conversion failed" {
		t.Errorf("batch = %+v", batch)
	}
}

func TestHandleBatchArchiveName(t *testing.T) {
	fx := newFixture(t, nil)
	fx.adapters[RoutePDFToImage].ext = "zip"

	batch, err := fx.d.HandleBatch(context.Background(), Request{
		Target: "png",
		Files:  []File{file("scan.pdf", "application/pdf", "x")},
	})
	if err != nil {
		t.Fatal(err)
	}

	got := batch.Results[0]
	if got.ConvertedName != "scan.zip" || got.ContentType != formats.ContentTypeZip {
		t.Errorf("outcome = %+v", got)
	}
}

func TestHandleBatchRegistryFailureRemovesOutput(t *testing.T) {
	fx := newFixture(t, func(cfg *Config) { cfg.Registry = failingRegistrar{} })

	batch, err := fx.d.HandleBatch(context.Background(), Request{
		Target: "png",
		Files:  []File{file("a.jpg", "image/jpeg", "x")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if batch.Results[0].OK() {
		t.Fatal("expected failure when the registry rejects the result")
	}

	entries, _ := os.ReadDir(fx.layout.Output)
	if len(entries) != 0 {
		t.Errorf("output left behind: %d entries", len(entries))
	}
}

func TestRouteForCoversEveryLegalPair(t *testing.T) {
	for _, p := range formats.Pairs() {
		if _, ok := RouteFor(p.Input, p.Output); !ok {
			t.Errorf("no route for %s -> %s", p.Input, p.Output)
		}
	}

	if _, ok := RouteFor("pdf", "mp4"); ok {
		t.Error("unexpected route for pdf -> mp4")
	}
}

func TestAdaptersFor(t *testing.T) {
	set := converter.NewSet(converter.DefaultConfig())
	adapters := AdaptersFor(set)

	for _, r := range Routes {
		if adapters[r] == nil {
			t.Errorf("no adapter for %s", r)
		}
	}
	if adapters[RouteVideoToVideo].Name() != "ffmpeg" || adapters[RoutePDFToImage].Name() != "pdftoppm" {
		t.Error("adapters wired to the wrong routes")
	}
}
