// Package formats is the format registry: the compiled-in table of
// supported formats, their families and the legal conversion pairs.
//
// Every lookup is case-insensitive and side-effect free. Video formats
// convert to every other video format; documents, images and PDF use the
// hand-enumerated pairs in basePairs.
package formats
