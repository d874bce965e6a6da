// Package preflight validates the environment before an indexing run:
// the document root is readable, the data directory is writable, there
// is disk space for the index files, and the embedding provider is
// reachable. The CLI runs these checks before the first build so
// misconfiguration surfaces as a clear message instead of a mid-build
// failure.
package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docscout/docscout/internal/embed"
)

// Status is the outcome of a single check.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// Result holds the outcome of a single check. Required failures block
// the run; non-required failures are reported as warnings.
type Result struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
}

// IsCritical reports whether this is a required check that failed.
func (r Result) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker runs environment checks for a document root and data
// directory pair.
type Checker struct {
	rootDir  string
	dataDir  string
	embedder embed.Embedder
}

// New creates a Checker. The embedder may be nil, in which case the
// provider reachability check is skipped.
func New(rootDir, dataDir string, embedder embed.Embedder) *Checker {
	return &Checker{rootDir: rootDir, dataDir: dataDir, embedder: embedder}
}

// RunAll runs every check and returns the results in a fixed order.
func (c *Checker) RunAll(ctx context.Context) []Result {
	results := []Result{
		c.CheckRootReadable(),
		c.CheckDataDirWritable(),
		c.CheckDiskSpace(),
	}
	if c.embedder != nil {
		results = append(results, c.CheckEmbedderReachable(ctx))
	}
	return results
}

// HasCriticalFailures reports whether any required check failed.
func HasCriticalFailures(results []Result) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// CheckRootReadable verifies the document root exists and is a
// readable directory.
func (c *Checker) CheckRootReadable() Result {
	result := Result{Name: "root_readable", Required: true}

	info, err := os.Stat(c.rootDir)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot access document folder: %v", err)
		return result
	}
	if !info.IsDir() {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not a directory", c.rootDir)
		return result
	}
	if _, err := os.ReadDir(c.rootDir); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read document folder: %v", err)
		return result
	}

	result.Status = StatusPass
	result.Message = c.rootDir
	return result
}

// CheckDataDirWritable verifies the data directory can be created and
// written to.
func (c *Checker) CheckDataDirWritable() Result {
	result := Result{Name: "data_dir_writable", Required: true}

	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create data directory: %v", err)
		return result
	}

	probe := filepath.Join(c.dataDir, ".write-probe")
	f, err := os.Create(probe)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("data directory not writable: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(probe)

	result.Status = StatusPass
	result.Message = c.dataDir
	return result
}

// CheckEmbedderReachable probes the embedding provider. Not required:
// a build with an unreachable provider keeps previous index entries
// rather than failing outright, but the warning tells the user why
// nothing new will be indexed.
func (c *Checker) CheckEmbedderReachable(ctx context.Context) Result {
	result := Result{Name: "embedder_reachable", Required: false}

	if c.embedder.Available(ctx) {
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%s (%d dimensions)", c.embedder.ModelName(), c.embedder.Dimensions())
		return result
	}

	result.Status = StatusWarn
	result.Message = fmt.Sprintf("embedding provider %s is not responding; changed documents will be retried next run", c.embedder.ModelName())
	return result
}
