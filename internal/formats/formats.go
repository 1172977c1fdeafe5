package formats

import (
	"sort"
	"strings"
)

// Format is a lower-cased file extension without the leading dot, e.g. "docx".
type Format string

// Family groups formats that share conversion rules.
type Family string

const (
	// FamilyDocument is office documents and plain text.
	FamilyDocument Family = "document"
	// FamilyImage is raster images.
	FamilyImage Family = "image"
	// FamilyPDF is PDF.
	FamilyPDF Family = "pdf"
	// FamilyVideo is video containers.
	FamilyVideo Family = "video"
	// FamilyUnknown is returned for formats outside every family.
	FamilyUnknown Family = ""
)

// Families lists the families in display order.
var Families = []Family{FamilyDocument, FamilyImage, FamilyPDF, FamilyVideo}

var familyMembers = map[Family][]Format{
	FamilyDocument: {"docx", "xlsx", "pptx", "txt"},
	FamilyImage:    {"jpeg", "jpg", "png", "webp", "tiff", "gif", "bmp"},
	FamilyPDF:      {"pdf"},
	FamilyVideo:    {"mp4", "mov", "avi", "mkv", "webm"},
}

// Pair is an ordered (input, output) conversion pair.
type Pair struct {
	Input  Format `json:"input"`
	Output Format `json:"output"`
}

var basePairs = []Pair{
	// Document to PDF
	{"docx", "pdf"}, {"xlsx", "pdf"}, {"pptx", "pdf"}, {"txt", "pdf"},

	// Image to image
	{"jpeg", "png"}, {"jpg", "png"}, {"png", "jpeg"},
	{"jpeg", "webp"}, {"jpg", "webp"}, {"png", "webp"},
	{"webp", "jpeg"}, {"webp", "png"},
	{"png", "tiff"}, {"tiff", "png"},
	{"gif", "png"}, {"bmp", "png"},
	{"gif", "jpeg"}, {"bmp", "jpeg"},

	// PDF to image
	{"pdf", "png"}, {"pdf", "jpeg"},

	// Image to PDF
	{"jpeg", "pdf"}, {"jpg", "pdf"}, {"png", "pdf"}, {"webp", "pdf"},
	{"tiff", "pdf"}, {"gif", "pdf"}, {"bmp", "pdf"},
}

// Compiled lookup tables, built once from familyMembers and basePairs.
var (
	formatFamily = map[Format]Family{}
	legalPairs   = map[Pair]bool{}
	targets      = map[Format][]Format{}
	allPairs     []Pair
)

func init() {
	for family, members := range familyMembers {
		for _, f := range members {
			formatFamily[f] = family
		}
	}

	pairs := append([]Pair{}, basePairs...)
	videos := familyMembers[FamilyVideo]
	for _, in := range videos {
		for _, out := range videos {
			if in != out {
				pairs = append(pairs, Pair{in, out})
			}
		}
	}

	for _, p := range pairs {
		if legalPairs[p] {
			continue
		}
		legalPairs[p] = true
		targets[p.Input] = append(targets[p.Input], p.Output)
		allPairs = append(allPairs, p)
	}
}

// Normalize lower-cases a format string and strips a leading dot.
func Normalize(s string) Format {
	return Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "."))
}

// IsLegalConversion reports whether input can be converted to output.
// Both arguments are case-insensitive; unknown formats are never legal.
func IsLegalConversion(input, output string) bool {
	return legalPairs[Pair{Normalize(input), Normalize(output)}]
}

// AvailableTargets returns every format reachable from input, in table
// order. The result is empty for unknown inputs.
func AvailableTargets(input string) []Format {
	t := targets[Normalize(input)]
	out := make([]Format, len(t))
	copy(out, t)
	return out
}

// ResolveFamily returns the family of a format, or FamilyUnknown.
func ResolveFamily(format string) Family {
	return formatFamily[Normalize(format)]
}

// IsSupported reports whether the format belongs to any family.
func IsSupported(format string) bool {
	return ResolveFamily(format) != FamilyUnknown
}

// Members returns the formats of a family in table order.
func Members(family Family) []Format {
	m := familyMembers[family]
	out := make([]Format, len(m))
	copy(out, m)
	return out
}

// Pairs returns every legal pair, base pairs first and then video pairs.
func Pairs() []Pair {
	out := make([]Pair, len(allPairs))
	copy(out, allPairs)
	return out
}

// SupportedFormats returns all known formats sorted alphabetically.
func SupportedFormats() []Format {
	out := make([]Format, 0, len(formatFamily))
	for f := range formatFamily {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
