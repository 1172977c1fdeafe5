package formats

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Validation error classes.
var (
	// ErrMissingExtension is returned for filenames without an extension.
	ErrMissingExtension = errors.New("file must have an extension")
	// ErrUnsupportedType is returned for extensions outside every family.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrTypeMismatch is returned when the declared content type does not
	// match the extension.
	ErrTypeMismatch = errors.New("content type mismatch")
	// ErrIllegalConversion is returned for a supported input whose pair with
	// the target is not legal.
	ErrIllegalConversion = errors.New("conversion not supported")
)

// ValidateFile checks a single upload and returns its input format. The
// declared content type may be empty or application/octet-stream, in which
// case only the extension is checked.
func ValidateFile(filename, declaredType string) (Format, error) {
	ext := Extension(filename)
	if ext == "" {
		return "", ErrMissingExtension
	}

	if !IsSupported(string(ext)) {
		return ext, fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}

	declared := mediaType(declaredType)
	if declared != "" && declared != ContentTypeOctetStream {
		expected := ContentType(string(ext))
		if declared != expected {
			return ext, fmt.Errorf("%w: expected %s, got %s", ErrTypeMismatch, expected, declared)
		}
	}

	return ext, nil
}

// ValidatePair checks that input can be converted to target and describes
// the available targets when it cannot.
func ValidatePair(input Format, target string) error {
	if IsLegalConversion(string(input), target) {
		return nil
	}

	available := AvailableTargets(string(input))
	names := make([]string, len(available))
	for i, f := range available {
		names[i] = string(f)
	}
	return fmt.Errorf("%w: cannot convert %s to %s. Available formats: %s",
		ErrIllegalConversion, input, Normalize(target), strings.Join(names, ", "))
}

var (
	disallowedChars = regexp.MustCompile(`[^A-Za-z0-9.-]`)
	underscoreRuns  = regexp.MustCompile(`_{2,}`)
)

// SanitizeFilename replaces every character outside [A-Za-z0-9.-] with an
// underscore, collapses underscore runs and trims underscores at both ends.
func SanitizeFilename(name string) string {
	name = disallowedChars.ReplaceAllString(name, "_")
	name = underscoreRuns.ReplaceAllString(name, "_")
	return strings.Trim(name, "_")
}

// OutputName builds the download name for a converted file: the sanitized
// base name of the original with ext appended.
func OutputName(original string, ext string) string {
	sanitized := SanitizeFilename(original)
	base := sanitized
	if idx := strings.LastIndex(sanitized, "."); idx >= 0 {
		base = sanitized[:idx]
	}
	if base == "" {
		base = "converted"
	}
	return base + "." + string(Normalize(ext))
}
