package converter

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP decoding for the fallback path

	"snapconvert/internal/formats"
	"snapconvert/internal/logging"
)

// Default encoder quality per target format.
var defaultQuality = map[formats.Format]int{
	"jpeg": 80,
	"jpg":  80,
	"png":  80,
	"webp": 80,
	"tiff": 90,
}

// ImageAdapter converts between raster formats in process. libvips is used
// when initialized; otherwise the pure Go imaging encoders handle every
// target except WebP.
type ImageAdapter struct {
	quality map[formats.Format]int
}

// NewImageAdapter creates the image adapter with the default qualities.
func NewImageAdapter() *ImageAdapter {
	q := make(map[formats.Format]int, len(defaultQuality))
	for k, v := range defaultQuality {
		q[k] = v
	}
	return &ImageAdapter{quality: q}
}

// Name implements Adapter.
func (a *ImageAdapter) Name() string { return "image" }

// Available implements Adapter. The imaging fallback is always compiled in.
func (a *ImageAdapter) Available(_ context.Context) error { return nil }

// Quality returns the encoder quality used for target.
func (a *ImageAdapter) Quality(target formats.Format) int {
	if q, ok := a.quality[formats.Normalize(string(target))]; ok {
		return q
	}
	return 80
}

// Convert implements Adapter.
func (a *ImageAdapter) Convert(ctx context.Context, job Job) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", toolError(a.Name(), ErrToolFailed, err)
	}

	data, err := a.Transcode(job.Input, job.OutputFormat)
	if err != nil {
		return "", err
	}

	output := outputPath(job.OutputDir, string(job.OutputFormat))
	if err := os.WriteFile(output, data, 0o644); err != nil {
		removeOutput(output)
		return "", toolError(a.Name(), ErrToolFailed, err)
	}
	return output, nil
}

// Transcode re-encodes input as target.
func (a *ImageAdapter) Transcode(input []byte, target formats.Format) ([]byte, error) {
	target = formats.Normalize(string(target))
	if IsVipsAvailable() {
		return a.transcodeVips(input, target)
	}
	return a.transcodeImaging(input, target)
}

func (a *ImageAdapter) transcodeVips(input []byte, target formats.Format) ([]byte, error) {
	ref, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return nil, toolError(a.Name(), ErrToolFailed, fmt.Errorf("vips failed to load image: %w", err))
	}
	defer ref.Close()

	if err := ref.AutoRotate(); err != nil {
		logging.Debug("vips auto-rotate skipped: %v", err)
	}

	quality := a.Quality(target)
	var out []byte

	switch target {
	case "jpeg", "jpg":
		if ref.HasAlpha() {
			if err := ref.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
				return nil, toolError(a.Name(), ErrToolFailed, fmt.Errorf("vips flatten failed: %w", err))
			}
		}
		params := vips.NewJpegExportParams()
		params.Quality = quality
		out, _, err = ref.ExportJpeg(params)
	case "png":
		params := vips.NewPngExportParams()
		params.Quality = quality
		out, _, err = ref.ExportPng(params)
	case "webp":
		params := vips.NewWebpExportParams()
		params.Quality = quality
		out, _, err = ref.ExportWebp(params)
	case "tiff":
		params := vips.NewTiffExportParams()
		params.Quality = quality
		out, _, err = ref.ExportTiff(params)
	default:
		return nil, toolError(a.Name(), ErrToolFailed, fmt.Errorf("unsupported image target %s", target))
	}

	if err != nil {
		return nil, toolError(a.Name(), ErrToolFailed, fmt.Errorf("vips export failed: %w", err))
	}
	return out, nil
}

func (a *ImageAdapter) transcodeImaging(input []byte, target formats.Format) ([]byte, error) {
	var format imaging.Format
	var opts []imaging.EncodeOption

	switch target {
	case "jpeg", "jpg":
		format = imaging.JPEG
		opts = append(opts, imaging.JPEGQuality(a.Quality(target)))
	case "png":
		format = imaging.PNG
	case "tiff":
		format = imaging.TIFF
	case "webp":
		return nil, toolError(a.Name(), ErrToolUnavailable, fmt.Errorf("webp encoding requires libvips"))
	default:
		return nil, toolError(a.Name(), ErrToolFailed, fmt.Errorf("unsupported image target %s", target))
	}

	img, err := imaging.Decode(bytes.NewReader(input), imaging.AutoOrientation(true))
	if err != nil {
		return nil, toolError(a.Name(), ErrToolFailed, fmt.Errorf("decode image: %w", err))
	}

	if format == imaging.JPEG {
		img = flatten(img)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, opts...); err != nil {
		return nil, toolError(a.Name(), ErrToolFailed, fmt.Errorf("encode image: %w", err))
	}
	return buf.Bytes(), nil
}

// flatten composites img over white so transparent areas do not turn
// black in formats without alpha.
func flatten(img image.Image) image.Image {
	bounds := img.Bounds()
	bg := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}
