// Package store persists document metadata in SQLite and serves
// vector similarity search through exact and partitioned indexes.
package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Variant identifies the vector index structure.
type Variant string

const (
	// VariantExact is a brute-force index with exact top-k guarantees.
	VariantExact Variant = "exact"
	// VariantPartitioned is a k-means partitioned index that trades a
	// small amount of recall for sublinear scan cost.
	VariantPartitioned Variant = "partitioned"
)

// ChooseVariant is the scale policy: a pure function of corpus size.
// Evaluated only at rebuild boundaries, never mid-cycle.
func ChooseVariant(chunkCount, threshold int) Variant {
	if chunkCount >= threshold {
		return VariantPartitioned
	}
	return VariantExact
}

// VectorResult is one similarity search hit.
type VectorResult struct {
	ID       string
	Distance float32
	Score    float32
}

// VectorIndexConfig configures a vector index.
type VectorIndexConfig struct {
	// Dimensions is the embedding vector size.
	Dimensions int
	// Metric is the distance metric: "cos" (default) or "l2".
	Metric string
	// NList is the number of partitions (partitioned variant only).
	NList int
	// NProbe is the number of partitions scanned per query
	// (partitioned variant only).
	NProbe int
}

// VectorIndex is the common contract of both index variants.
type VectorIndex interface {
	// Add inserts vectors with their IDs. Existing IDs are replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Delete removes vectors by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Search finds the k nearest neighbors of the query vector,
	// ordered by ascending distance.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Count returns the number of stored vectors.
	Count() int

	// Variant returns the index structure identifier.
	Variant() Variant

	// Dimensions returns the vector size the index was built for.
	Dimensions() int

	// Save persists the index to disk atomically.
	Save(path string) error

	// Close releases resources.
	Close() error
}

// ErrDimensionMismatch reports a vector of the wrong size.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// DocumentRecord is one indexed document's metadata row.
type DocumentRecord struct {
	ID          string
	Path        string
	Fingerprint string
	Size        int64
	ModTime     time.Time
	Format      string
	IndexedAt   time.Time
}

// ChunkRecord is one chunk row, embedding included so a structure
// rebuild never re-calls the embedding provider.
type ChunkRecord struct {
	ID         string
	DocumentID string
	Seq        int
	Location   string
	Ordinal    int
	Text       string
	WordCount  int
	Embedding  []float32
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// distanceToScore converts a distance value to a similarity score in [0,1],
// monotone decreasing in distance.
// For cosine distance (range 0-2): score = 1 - distance/2.
// For L2 distance (range 0-inf): score = 1 / (1 + distance).
func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + distance)
	default:
		return 1.0 - distance/2.0
	}
}

// vectorDistance computes the configured distance between two vectors.
// Both are assumed normalized when the metric is cosine.
func vectorDistance(a, b []float32, metric string) float32 {
	switch metric {
	case "l2":
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return float32(math.Sqrt(sum))
	default:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return float32(1.0 - dot)
	}
}

// EncodeVector serializes a float32 vector as little-endian bytes for
// BLOB storage.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// DecodeVector deserializes a little-endian float32 BLOB.
func DecodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d", len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return v, nil
}
