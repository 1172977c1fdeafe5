// Package converter wraps the external tools and libraries that perform
// the actual conversions.
//
// Subprocess adapters (soffice, pdftoppm, ffmpeg) spill the input to a
// uniquely named temp file, run the tool through a Runner under a hard
// deadline, and remove the temp input on every exit path. On expiry the
// tool receives SIGTERM and, after a grace period, SIGKILL.
//
// In-process adapters use libvips (when initialized) or the imaging
// package for raster formats, and gofpdf for composing images into PDF
// pages.
//
// Every failure is a *ToolError whose class is one of ErrToolUnavailable,
// ErrToolTimeout, ErrToolFailed or ErrOutputMissing.
package converter
