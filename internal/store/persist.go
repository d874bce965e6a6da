package store

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// IndexMeta is the .meta sidecar next to a persisted vector index.
// Loaders read it to pick the right decoder without opening the
// (potentially large) index file first.
type IndexMeta struct {
	Variant Variant
	Config  VectorIndexConfig
	Count   int
}

// saveGob gob-encodes v to path atomically (temp file + rename).
func saveGob(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if err := gob.NewEncoder(file).Encode(v); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to encode: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// loadGob gob-decodes path into v.
func loadGob(path string, v any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := gob.NewDecoder(file).Decode(v); err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}
	return nil
}

// saveIndexMeta writes the sidecar for a persisted index.
func saveIndexMeta(indexPath string, meta IndexMeta) error {
	if err := saveGob(indexPath+".meta", &meta); err != nil {
		return fmt.Errorf("failed to save index metadata: %w", err)
	}
	return nil
}

// ReadIndexMeta reads the sidecar of a persisted index. Returns the
// zero meta with no error when the sidecar does not exist (fresh start).
func ReadIndexMeta(indexPath string) (IndexMeta, bool, error) {
	var meta IndexMeta
	metaPath := indexPath + ".meta"

	if _, err := os.Stat(metaPath); os.IsNotExist(err) {
		return meta, false, nil
	}

	if err := loadGob(metaPath, &meta); err != nil {
		return meta, false, err
	}
	return meta, true, nil
}

// OpenIndex loads a persisted vector index, dispatching on the variant
// recorded in its .meta sidecar.
func OpenIndex(path string) (VectorIndex, error) {
	meta, ok, err := ReadIndexMeta(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read index metadata: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("no index metadata at %s.meta", path)
	}

	switch meta.Variant {
	case VariantExact:
		return LoadFlatIndex(path)
	case VariantPartitioned:
		return LoadIVFIndex(path)
	default:
		return nil, fmt.Errorf("unknown index variant %q", meta.Variant)
	}
}
