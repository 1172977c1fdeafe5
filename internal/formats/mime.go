package formats

import (
	"mime"
	"path/filepath"
	"strings"
)

// contentTypes maps every supported format to its MIME type.
var contentTypes = map[Format]string{
	// Documents
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"txt":  "text/plain",

	// PDF
	"pdf": "application/pdf",

	// Images
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"tiff": "image/tiff",
	"gif":  "image/gif",
	"bmp":  "image/bmp",

	// Videos
	"mp4":  "video/mp4",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",
	"mkv":  "video/x-matroska",
	"webm": "video/webm",
}

const (
	// ContentTypeOctetStream is used for anything not in the table.
	ContentTypeOctetStream = "application/octet-stream"
	// ContentTypeZip is the content type of multi-page archives.
	ContentTypeZip = "application/zip"
)

// ContentType returns the MIME type for a format, or
// application/octet-stream when the format is not supported.
func ContentType(format string) string {
	if ct, ok := contentTypes[Normalize(format)]; ok {
		return ct
	}
	return ContentTypeOctetStream
}

// ContentTypeForPath returns the MIME type for an output file path. Zip
// archives are recognised in addition to the convertible formats.
func ContentTypeForPath(path string) string {
	ext := Normalize(filepath.Ext(path))
	if ext == "zip" {
		return ContentTypeZip
	}
	return ContentType(string(ext))
}

// Extension returns the lower-cased extension of a filename without the dot.
// A name with no dot or ending in a dot yields "".
func Extension(filename string) Format {
	idx := strings.LastIndex(filename, ".")
	if idx == -1 || idx == len(filename)-1 {
		return ""
	}
	return Normalize(filename[idx+1:])
}

// mediaType strips parameters such as "; charset=utf-8".
func mediaType(declared string) string {
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(declared))
	}
	return mt
}
