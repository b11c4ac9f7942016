// Package rowcodec reads advertiser files into rows.Table chunks and writes
// tables back out as JSON lines or CSV.
package rowcodec

import (
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
)

// ErrUnsupportedFormat is returned when an input format cannot be determined
// or is neither JSON nor CSV.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrCorrupt is returned when a line or record cannot be parsed.
var ErrCorrupt = errors.New("corrupt record")

// Format is the serialization of an advertiser file.
type Format string

const (
	JSON Format = "JSON"
	CSV  Format = "CSV"
)

// ParseFormat accepts "json" and "csv" in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToUpper(strings.TrimSpace(s))); f {
	case JSON, CSV:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// FormatFromContentType maps an object content type to a Format.
func FormatFromContentType(contentType string) (Format, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: content type %q", ErrUnsupportedFormat, contentType)
	}
	switch mediaType {
	case "application/json", "application/x-ndjson", "application/jsonl", "application/json-lines", "application/x-jsonlines":
		return JSON, nil
	case "text/csv", "application/csv":
		return CSV, nil
	}
	return "", fmt.Errorf("%w: content type %q", ErrUnsupportedFormat, contentType)
}

// FormatFromName maps a file name to a Format by extension, ignoring a
// trailing ".gz".
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(path.Ext(strings.TrimSuffix(name, ".gz"))) {
	case ".json", ".jsonl", ".ndjson":
		return JSON, nil
	case ".csv":
		return CSV, nil
	}
	return "", fmt.Errorf("%w: file name %q", ErrUnsupportedFormat, name)
}

// ContentType returns the media type written for f.
func (f Format) ContentType() string {
	if f == CSV {
		return "text/csv"
	}
	return "application/json"
}
