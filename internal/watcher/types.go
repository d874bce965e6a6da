// Package watcher observes a document folder and turns file system
// noise into debounced change batches that drive index builds.
package watcher

import (
	"time"
)

// Operation is a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file appeared.
	OpCreate Operation = iota
	// OpModify indicates an existing file changed.
	OpModify
	// OpDelete indicates a file was removed.
	OpDelete
	// OpRename indicates a file was renamed away.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed change to a document.
type FileEvent struct {
	// Path is the root-relative path of the document.
	Path string

	// Operation is the kind of change.
	Operation Operation

	// Timestamp is when the event was observed.
	Timestamp time.Time
}

// Options configures a FolderWatcher.
type Options struct {
	// RootDir is the document folder to watch.
	RootDir string

	// ExcludePatterns are doublestar globs never reported.
	ExcludePatterns []string

	// Debounce is the quiet period before a batch is emitted.
	// Default: 500ms.
	Debounce time.Duration

	// BufferSize is the batch channel capacity. Default: 64.
	BufferSize int
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	if o.Debounce == 0 {
		o.Debounce = 500 * time.Millisecond
	}
	if o.BufferSize == 0 {
		o.BufferSize = 64
	}
	return o
}
