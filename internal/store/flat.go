package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// FlatIndex is the exact variant: brute-force scan over all vectors.
// Top-k results are exact by construction.
type FlatIndex struct {
	mu     sync.RWMutex
	config VectorIndexConfig

	ids     []string
	vectors [][]float32
	idPos   map[string]int

	closed bool
}

var _ VectorIndex = (*FlatIndex)(nil)

// flatSnapshot is the gob persistence form of a FlatIndex.
type flatSnapshot struct {
	Config  VectorIndexConfig
	IDs     []string
	Vectors [][]float32
}

// NewFlatIndex creates an empty exact index.
func NewFlatIndex(cfg VectorIndexConfig) (*FlatIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}

	return &FlatIndex{
		config: cfg,
		idPos:  make(map[string]int),
	}, nil
}

// Add inserts vectors with their IDs. Existing IDs are replaced in place.
func (f *FlatIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("index is closed")
	}

	for _, v := range vectors {
		if len(v) != f.config.Dimensions {
			return ErrDimensionMismatch{Expected: f.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if f.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}

		if pos, exists := f.idPos[id]; exists {
			f.vectors[pos] = vec
			continue
		}

		f.idPos[id] = len(f.ids)
		f.ids = append(f.ids, id)
		f.vectors = append(f.vectors, vec)
	}

	return nil
}

// Delete removes vectors by ID with swap-remove. Unknown IDs are ignored.
func (f *FlatIndex) Delete(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("index is closed")
	}

	for _, id := range ids {
		pos, exists := f.idPos[id]
		if !exists {
			continue
		}

		last := len(f.ids) - 1
		if pos != last {
			f.ids[pos] = f.ids[last]
			f.vectors[pos] = f.vectors[last]
			f.idPos[f.ids[pos]] = pos
		}
		f.ids = f.ids[:last]
		f.vectors = f.vectors[:last]
		delete(f.idPos, id)
	}

	return nil
}

// Search scans every vector and returns the exact k nearest neighbors,
// ordered by ascending distance.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if len(query) != f.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: f.config.Dimensions, Got: len(query)}
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(f.ids) == 0 {
		return []*VectorResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if f.config.Metric == "cos" {
		normalizeVectorInPlace(q)
	}

	results := make([]*VectorResult, len(f.ids))
	for i, vec := range f.vectors {
		d := vectorDistance(q, vec, f.config.Metric)
		results[i] = &VectorResult{
			ID:       f.ids[i],
			Distance: d,
			Score:    distanceToScore(d, f.config.Metric),
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of stored vectors.
func (f *FlatIndex) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.ids)
}

// Variant returns VariantExact.
func (f *FlatIndex) Variant() Variant {
	return VariantExact
}

// Dimensions returns the vector size the index was built for.
func (f *FlatIndex) Dimensions() int {
	return f.config.Dimensions
}

// Save persists the index to disk atomically (temp file + rename)
// with a .meta sidecar describing the variant.
func (f *FlatIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return fmt.Errorf("index is closed")
	}

	snapshot := flatSnapshot{
		Config:  f.config,
		IDs:     f.ids,
		Vectors: f.vectors,
	}
	if err := saveGob(path, &snapshot); err != nil {
		return fmt.Errorf("failed to save flat index: %w", err)
	}

	return saveIndexMeta(path, IndexMeta{
		Variant: VariantExact,
		Config:  f.config,
		Count:   len(f.ids),
	})
}

// LoadFlatIndex loads an exact index persisted by Save.
func LoadFlatIndex(path string) (*FlatIndex, error) {
	var snapshot flatSnapshot
	if err := loadGob(path, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to load flat index: %w", err)
	}

	idx, err := NewFlatIndex(snapshot.Config)
	if err != nil {
		return nil, err
	}

	idx.ids = snapshot.IDs
	idx.vectors = snapshot.Vectors
	for i, id := range snapshot.IDs {
		idx.idPos[id] = i
	}
	return idx, nil
}

// Close releases resources.
func (f *FlatIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	f.ids = nil
	f.vectors = nil
	f.idPos = nil
	return nil
}
