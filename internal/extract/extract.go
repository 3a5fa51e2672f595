// Package extract converts uploaded file payloads of known kinds into plain text.
//
// Kind dispatch is by filename suffix, case-insensitive. Parse failures are
// always reported as *ExtractionError; the underlying parser's error types
// never escape this package.
package extract

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// UnsupportedKindError reports a filename suffix outside the accepted set.
// It is not retryable; the input must be rejected.
type UnsupportedKindError struct {
	Ext     string
	Allowed []string
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("unsupported file type %q (allowed: %s)", e.Ext, strings.Join(e.Allowed, ", "))
}

// ExtractionError reports a failure to turn an accepted file into text.
type ExtractionError struct {
	Filename string
	Reason   string
	Cause    error

	// Decode diagnostics, set for plain-text files only.
	Attempted  []string
	BestGuess  string
	Confidence int
}

func (e *ExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("extracting %s: %s: %v", e.Filename, e.Reason, e.Cause)
	}
	return fmt.Sprintf("extracting %s: %s", e.Filename, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Cause }

var supportedExts = map[string]bool{
	".txt":  true,
	".pdf":  true,
	".docx": true,
}

// Supported returns the accepted filename suffixes, sorted.
func Supported() []string {
	exts := make([]string, 0, len(supportedExts))
	for ext := range supportedExts {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Kind returns the lowercased suffix of filename (with leading dot).
func Kind(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// IsSupported reports whether filename has an accepted suffix.
func IsSupported(filename string) bool {
	return supportedExts[Kind(filename)]
}

// Extract converts data into plain text based on the filename suffix.
// The result may be empty; emptiness is the caller's call to make.
func Extract(filename string, data []byte) (string, error) {
	switch Kind(filename) {
	case ".txt":
		return extractPlainText(filename, data)
	case ".pdf":
		return extractPDF(filename, data)
	case ".docx":
		return extractDOCX(filename, data)
	default:
		return "", &UnsupportedKindError{Ext: Kind(filename), Allowed: Supported()}
	}
}
