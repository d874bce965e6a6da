package index

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docscout/docscout/internal/scanner"
	"github.com/docscout/docscout/internal/store"
)

func candidate(path, fp string) Candidate {
	return Candidate{
		File:        scanner.FileInfo{Path: path, Format: scanner.FormatText},
		Fingerprint: fp,
	}
}

func TestDetectChanges(t *testing.T) {
	current := []Candidate{
		candidate("new.txt", "fp-new"),
		candidate("same.txt", "fp-same"),
		candidate("edited.txt", "fp-v2"),
	}
	previous := map[string]string{
		"same.txt":   "fp-same",
		"edited.txt": "fp-v1",
		"gone.txt":   "fp-gone",
		"also.txt":   "fp-also",
	}

	cs := DetectChanges(current, previous)

	require.Len(t, cs.Added, 1)
	assert.Equal(t, "new.txt", cs.Added[0].File.Path)
	require.Len(t, cs.Modified, 1)
	assert.Equal(t, "edited.txt", cs.Modified[0].File.Path)
	assert.Equal(t, []string{"also.txt", "gone.txt"}, cs.Removed)
	assert.Equal(t, 1, cs.Unchanged)
	assert.False(t, cs.Empty())
}

func TestDetectChangesEmpty(t *testing.T) {
	cs := DetectChanges(nil, nil)
	assert.True(t, cs.Empty())
	assert.Equal(t, 0, cs.Unchanged)

	cs = DetectChanges([]Candidate{candidate("a.txt", "fp")}, map[string]string{"a.txt": "fp"})
	assert.True(t, cs.Empty())
	assert.Equal(t, 1, cs.Unchanged)
}

func TestManifestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")

	m := &Manifest{
		Version:      ManifestVersion,
		Fingerprints: map[string]string{"a.txt": "fp-a"},
		ChunkCount:   42,
		Dimensions:   256,
		Variant:      store.VariantExact,
		Model:        "nomic-embed-text",
		IndexHash:    "deadbeef",
		BuiltAt:      time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, SaveManifest(path, m))

	got, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestLoadManifestMissingIsNil(t *testing.T) {
	got, err := LoadManifest(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHandleSwapAndSnapshot(t *testing.T) {
	h := NewHandle()
	assert.False(t, h.Ready())
	assert.Nil(t, h.Snapshot())

	first, err := store.NewFlatIndex(store.VectorIndexConfig{Dimensions: 2})
	require.NoError(t, err)
	assert.Nil(t, h.Swap(first))
	assert.True(t, h.Ready())
	assert.Same(t, store.VectorIndex(first), h.Snapshot())

	second, err := store.NewFlatIndex(store.VectorIndexConfig{Dimensions: 2})
	require.NoError(t, err)
	old := h.Swap(second)
	assert.Same(t, store.VectorIndex(first), old)
	assert.Same(t, store.VectorIndex(second), h.Snapshot())
}

func TestBuildLock(t *testing.T) {
	dir := t.TempDir()

	l1 := NewBuildLock(dir)
	acquired, err := l1.TryLock()
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, l1.Unlock())
	require.NoError(t, l1.Unlock()) // idempotent

	l2 := NewBuildLock(dir)
	acquired, err = l2.TryLock()
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, l2.Unlock())
}
