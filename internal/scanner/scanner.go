package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Scanner discovers supported documents in a folder tree.
type Scanner struct{}

// New creates a new Scanner instance.
func New() *Scanner {
	return &Scanner{}
}

// Scan discovers all supported documents under the root directory.
// It returns a channel of ScanResult that streams files as they are
// discovered. The channel is closed when scanning is complete.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions) (<-chan ScanResult, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}

	rootDir := opts.RootDir
	if rootDir == "" {
		rootDir = "."
	}

	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", absRoot)
	}

	maxFileSize := opts.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}

	results := make(chan ScanResult, 64)

	go func() {
		defer close(results)
		s.scan(ctx, absRoot, opts, maxFileSize, results)
	}()

	return results, nil
}

// ScanAll is a convenience wrapper that collects the streamed results
// into a slice, sorted by the walk order.
func (s *Scanner) ScanAll(ctx context.Context, opts *ScanOptions) ([]FileInfo, error) {
	ch, err := s.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	var files []FileInfo
	for res := range ch {
		if res.Error != nil {
			return nil, res.Error
		}
		files = append(files, *res.File)
	}
	return files, nil
}

func (s *Scanner) scan(ctx context.Context, absRoot string, opts *ScanOptions, maxFileSize int64, results chan<- ScanResult) {
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // Skip entries we can't access
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if relPath != "." && s.excluded(relPath+"/", opts.ExcludePatterns) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are never followed
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		format := DetectFormat(relPath)
		if format == FormatUnknown {
			return nil
		}

		if s.excluded(relPath, opts.ExcludePatterns) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		if info.Size() > maxFileSize {
			slog.Debug("skipping oversized file",
				slog.String("path", relPath),
				slog.Int64("size", info.Size()))
			return nil
		}

		select {
		case results <- ScanResult{File: &FileInfo{
			Path:    filepath.ToSlash(relPath),
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Format:  format,
		}}:
		case <-ctx.Done():
			return ctx.Err()
		}

		return nil
	})
	if err != nil && err != context.Canceled {
		select {
		case results <- ScanResult{Error: err}:
		default:
		}
	}
}

// excluded reports whether the relative path matches any exclude pattern.
// Patterns use doublestar syntax; directories are matched with a trailing
// slash stripped so both "**/drafts/**" and "drafts/**" work.
func (s *Scanner) excluded(relPath string, patterns []string) bool {
	slashPath := filepath.ToSlash(relPath)
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, slashPath); err == nil && ok {
			return true
		}
		// Try matching directories without their trailing slash too
		if len(slashPath) > 0 && slashPath[len(slashPath)-1] == '/' {
			if ok, err := doublestar.Match(pattern, slashPath[:len(slashPath)-1]); err == nil && ok {
				return true
			}
		}
	}
	return false
}
