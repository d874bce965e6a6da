package index

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docscout/docscout/internal/store"
)

// ManifestVersion is the current manifest schema version.
const ManifestVersion = 1

// Manifest records the state of the last successful build. It is the
// last file written in a cycle, so its presence means the index file,
// the metadata store, and the fingerprints it lists are consistent.
type Manifest struct {
	Version      int               `json:"version"`
	Fingerprints map[string]string `json:"fingerprints"`
	ChunkCount   int               `json:"chunk_count"`
	Dimensions   int               `json:"dimensions"`
	Variant      store.Variant     `json:"variant"`
	Model        string            `json:"model"`
	IndexHash    string            `json:"index_hash"`
	BuiltAt      time.Time         `json:"built_at"`
}

// SaveManifest writes the manifest as JSON atomically (temp file + rename).
func SaveManifest(path string, m *Manifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename manifest: %w", err)
	}
	return nil
}

// LoadManifest reads a manifest. Returns (nil, nil) when the file does
// not exist: a missing manifest is a fresh start, not an error.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// HashIndexFile computes the SHA-256 of a persisted index file. The
// digest is recorded in the manifest and checked on load so a torn or
// tampered index file forces a rebuild instead of serving bad results.
func HashIndexFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = file.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("failed to hash index file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyIndexFile checks a persisted index file against the hash the
// manifest recorded for it.
func VerifyIndexFile(path, wantHash string) error {
	got, err := HashIndexFile(path)
	if err != nil {
		return err
	}
	if got != wantHash {
		return fmt.Errorf("index file hash mismatch: manifest %s, file %s", wantHash, got)
	}
	return nil
}
