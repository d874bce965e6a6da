// Package search answers semantic queries against the serving vector
// index and resolves hits into document-anchored results.
package search

// Options configures one query.
type Options struct {
	// TopK is the number of results to return. Must be positive.
	// A value larger than the corpus returns everything.
	TopK int

	// Documents restricts results to these root-relative paths.
	// Empty means no filter.
	Documents []string
}

// Result is one ranked hit.
type Result struct {
	DocumentID string
	Path       string
	Location   string
	Ordinal    int
	Text       string
	Snippet    string
	Score      float32
}
