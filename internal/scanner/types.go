// Package scanner discovers indexable documents in a folder,
// respecting exclusion patterns and size limits, and computes
// content fingerprints for change detection.
package scanner

import (
	"strings"
	"time"
)

// Format identifies a supported document format.
type Format string

const (
	// FormatPDF is a PDF document.
	FormatPDF Format = "pdf"
	// FormatDocx is an Office Open XML word processing document.
	FormatDocx Format = "docx"
	// FormatDoc is a legacy binary Word document.
	FormatDoc Format = "doc"
	// FormatXlsx is an Office Open XML spreadsheet.
	FormatXlsx Format = "xlsx"
	// FormatXls is a legacy binary Excel spreadsheet.
	FormatXls Format = "xls"
	// FormatText is a plain text document.
	FormatText Format = "text"
	// FormatMarkdown is a markdown document.
	FormatMarkdown Format = "markdown"
	// FormatUnknown is an unrecognized format.
	FormatUnknown Format = ""
)

// FileInfo contains metadata about a discovered document.
type FileInfo struct {
	Path    string    // Relative path to the document root
	AbsPath string    // Absolute path
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
	Format  Format    // Detected document format
}

// ScanOptions configures the scanner behavior.
type ScanOptions struct {
	// RootDir is the document root directory to scan.
	RootDir string

	// ExcludePatterns specifies doublestar glob patterns to exclude.
	ExcludePatterns []string

	// MaxFileSize is the maximum file size to include in bytes (0 = 100MB default).
	MaxFileSize int64
}

// ScanResult is returned from the scanner channel.
type ScanResult struct {
	File  *FileInfo
	Error error
}

// DefaultMaxFileSize is the default maximum file size (100MB).
const DefaultMaxFileSize = 100 * 1024 * 1024

// formatByExtension maps file extensions to document formats.
var formatByExtension = map[string]Format{
	".pdf":  FormatPDF,
	".docx": FormatDocx,
	".doc":  FormatDoc,
	".xlsx": FormatXlsx,
	".xls":  FormatXls,
	".txt":  FormatText,
	".md":   FormatMarkdown,
}

// DetectFormat detects the document format from a file path.
// Returns FormatUnknown for unsupported extensions.
func DetectFormat(path string) Format {
	ext := strings.ToLower(extension(path))
	if f, ok := formatByExtension[ext]; ok {
		return f
	}
	return FormatUnknown
}

// extension returns the file extension from a path (including the dot).
func extension(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' || path[i] == '\\' {
			break
		}
	}
	return ""
}
