package index

import (
	"sort"

	"github.com/docscout/docscout/internal/scanner"
)

// Candidate is a discovered file paired with its content fingerprint.
type Candidate struct {
	File        scanner.FileInfo
	Fingerprint string
}

// ChangeSet partitions a scan against the previously indexed state.
// The three sets are disjoint: a path appears in at most one of them.
type ChangeSet struct {
	Added     []Candidate
	Modified  []Candidate
	Removed   []string
	Unchanged int
}

// Empty reports whether the change set requires no index work.
func (cs ChangeSet) Empty() bool {
	return len(cs.Added) == 0 && len(cs.Modified) == 0 && len(cs.Removed) == 0
}

// DetectChanges compares the current scan against the fingerprints
// recorded for the previous build. previous maps relative path to
// content fingerprint; paths present there but absent from the scan
// are removed.
func DetectChanges(current []Candidate, previous map[string]string) ChangeSet {
	var cs ChangeSet

	seen := make(map[string]bool, len(current))
	for _, cand := range current {
		seen[cand.File.Path] = true

		prevFP, existed := previous[cand.File.Path]
		switch {
		case !existed:
			cs.Added = append(cs.Added, cand)
		case prevFP != cand.Fingerprint:
			cs.Modified = append(cs.Modified, cand)
		default:
			cs.Unchanged++
		}
	}

	for path := range previous {
		if !seen[path] {
			cs.Removed = append(cs.Removed, path)
		}
	}
	sort.Strings(cs.Removed)

	return cs
}
