package converter

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // DecodeConfig of re-encoded pages
	"math"
	"strconv"

	"github.com/jung-kurt/gofpdf"
)

const (
	// pageMargin is the printable-area inset on every side, in points.
	pageMargin = 50.0
	pagePaper  = "A4"
)

// ComposeAdapter lays images out as PDF pages, one image per page, scaled to
// fit the printable area and centered.
type ComposeAdapter struct {
	images *ImageAdapter
}

// NewComposeAdapter creates the PDF composer. Pages are re-encoded as JPEG
// through images.
func NewComposeAdapter(images *ImageAdapter) *ComposeAdapter {
	return &ComposeAdapter{images: images}
}

// Name implements Adapter.
func (a *ComposeAdapter) Name() string { return "pdf-composer" }

// Available implements Adapter.
func (a *ComposeAdapter) Available(_ context.Context) error { return nil }

// Convert implements Adapter for a single image.
func (a *ComposeAdapter) Convert(ctx context.Context, job Job) (string, error) {
	return a.Compose(ctx, [][]byte{job.Input}, job.OutputDir)
}

// Compose writes a PDF with one page per input, in order, to outputDir.
func (a *ComposeAdapter) Compose(ctx context.Context, inputs [][]byte, outputDir string) (string, error) {
	doc, err := a.build(ctx, inputs)
	if err != nil {
		return "", err
	}

	output := outputPath(outputDir, "pdf")
	if err := doc.OutputFileAndClose(output); err != nil {
		removeOutput(output)
		return "", toolError(a.Name(), ErrToolFailed, err)
	}
	return output, nil
}

func (a *ComposeAdapter) build(ctx context.Context, inputs [][]byte) (*gofpdf.Fpdf, error) {
	if len(inputs) == 0 {
		return nil, toolError(a.Name(), ErrOutputMissing, fmt.Errorf("no images to compose"))
	}

	doc := gofpdf.New("P", "pt", pagePaper, "")
	doc.SetMargins(pageMargin, pageMargin, pageMargin)
	doc.SetAutoPageBreak(false, 0)

	for i, input := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, toolError(a.Name(), ErrToolFailed, err)
		}

		page, err := a.images.Transcode(input, "jpeg")
		if err != nil {
			return nil, err
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(page))
		if err != nil {
			return nil, toolError(a.Name(), ErrToolFailed, fmt.Errorf("read page %d: %w", i+1, err))
		}

		name := "page" + strconv.Itoa(i)
		opts := gofpdf.ImageOptions{ImageType: "JPG"}
		doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(page))

		doc.AddPage()
		pageW, pageH := doc.GetPageSize()
		x, y, w, h := fitCentered(float64(cfg.Width), float64(cfg.Height), pageW, pageH, pageMargin)
		doc.ImageOptions(name, x, y, w, h, false, opts, 0, "")

		if doc.Err() {
			return nil, toolError(a.Name(), ErrToolFailed, doc.Error())
		}
	}

	return doc, nil
}

// fitCentered scales a w×h box to fit inside the page less margin on each
// side, preserving aspect ratio, and centers it.
func fitCentered(w, h, pageW, pageH, margin float64) (x, y, fw, fh float64) {
	availW := pageW - 2*margin
	availH := pageH - 2*margin
	if w <= 0 || h <= 0 {
		return margin, margin, 0, 0
	}
	scale := math.Min(availW/w, availH/h)
	fw = w * scale
	fh = h * scale
	x = margin + (availW-fw)/2
	y = margin + (availH-fh)/2
	return x, y, fw, fh
}
