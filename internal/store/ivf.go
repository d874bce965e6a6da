package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// maxKMeansIterations bounds centroid training time.
const maxKMeansIterations = 10

// IVFIndex is the partitioned variant: vectors are assigned to the
// nearest of nlist k-means centroids and queries scan only the nprobe
// nearest partitions. Centroids are trained once at construction;
// incremental adds assign to existing centroids without retraining.
type IVFIndex struct {
	mu     sync.RWMutex
	config VectorIndexConfig

	centroids [][]float32
	lists     [][]ivfEntry
	idLoc     map[string]ivfLoc
	count     int

	closed bool
}

var _ VectorIndex = (*IVFIndex)(nil)

type ivfEntry struct {
	ID     string
	Vector []float32
}

type ivfLoc struct {
	List int
	Pos  int
}

// ivfSnapshot is the gob persistence form of an IVFIndex.
type ivfSnapshot struct {
	Config    VectorIndexConfig
	Centroids [][]float32
	Lists     [][]ivfEntry
}

// NewIVFIndex creates a partitioned index, training centroids over the
// given vectors. The training set is typically every persisted embedding;
// it is not inserted, callers Add vectors explicitly afterwards.
func NewIVFIndex(cfg VectorIndexConfig, training [][]float32) (*IVFIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.NList <= 0 {
		cfg.NList = 100
	}
	if cfg.NProbe <= 0 {
		cfg.NProbe = 8
	}
	if len(training) == 0 {
		return nil, fmt.Errorf("partitioned index requires a non-empty training set")
	}
	for _, v := range training {
		if len(v) != cfg.Dimensions {
			return nil, ErrDimensionMismatch{Expected: cfg.Dimensions, Got: len(v)}
		}
	}

	// Cannot have more partitions than training points
	if cfg.NList > len(training) {
		cfg.NList = len(training)
	}
	if cfg.NProbe > cfg.NList {
		cfg.NProbe = cfg.NList
	}

	normalized := make([][]float32, len(training))
	for i, v := range training {
		vec := make([]float32, len(v))
		copy(vec, v)
		if cfg.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}
		normalized[i] = vec
	}

	centroids := trainKMeans(normalized, cfg.NList, cfg.Metric)

	return &IVFIndex{
		config:    cfg,
		centroids: centroids,
		lists:     make([][]ivfEntry, len(centroids)),
		idLoc:     make(map[string]ivfLoc),
	}, nil
}

// trainKMeans runs bounded Lloyd iterations. Initial centroids are
// evenly spaced training points, which is deterministic for a given
// training order. Empty clusters keep their previous centroid.
func trainKMeans(vectors [][]float32, k int, metric string) [][]float32 {
	dims := len(vectors[0])

	centroids := make([][]float32, k)
	step := len(vectors) / k
	for i := 0; i < k; i++ {
		src := vectors[i*step]
		c := make([]float32, dims)
		copy(c, src)
		centroids[i] = c
	}

	assignments := make([]int, len(vectors))
	for iter := 0; iter < maxKMeansIterations; iter++ {
		changed := false
		for i, v := range vectors {
			best := nearestCentroid(v, centroids, metric)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for i := range sums {
			sums[i] = make([]float64, dims)
		}
		for i, v := range vectors {
			c := assignments[i]
			counts[c]++
			for d, x := range v {
				sums[c][d] += float64(x)
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			for d := 0; d < dims; d++ {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
			if metric == "cos" {
				normalizeVectorInPlace(centroids[c])
			}
		}
	}

	return centroids
}

// nearestCentroid returns the index of the closest centroid.
func nearestCentroid(v []float32, centroids [][]float32, metric string) int {
	best := 0
	bestDist := vectorDistance(v, centroids[0], metric)
	for i := 1; i < len(centroids); i++ {
		if d := vectorDistance(v, centroids[i], metric); d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// Add assigns vectors to their nearest partition. Existing IDs are
// replaced. Centroids are never retrained here.
func (ivf *IVFIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	ivf.mu.Lock()
	defer ivf.mu.Unlock()

	if ivf.closed {
		return fmt.Errorf("index is closed")
	}

	for _, v := range vectors {
		if len(v) != ivf.config.Dimensions {
			return ErrDimensionMismatch{Expected: ivf.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if _, exists := ivf.idLoc[id]; exists {
			ivf.deleteLocked(id)
		}

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if ivf.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}

		list := nearestCentroid(vec, ivf.centroids, ivf.config.Metric)
		ivf.idLoc[id] = ivfLoc{List: list, Pos: len(ivf.lists[list])}
		ivf.lists[list] = append(ivf.lists[list], ivfEntry{ID: id, Vector: vec})
		ivf.count++
	}

	return nil
}

// Delete removes vectors by ID. Unknown IDs are ignored.
func (ivf *IVFIndex) Delete(ctx context.Context, ids []string) error {
	ivf.mu.Lock()
	defer ivf.mu.Unlock()

	if ivf.closed {
		return fmt.Errorf("index is closed")
	}

	for _, id := range ids {
		ivf.deleteLocked(id)
	}
	return nil
}

// deleteLocked swap-removes one entry from its posting list.
func (ivf *IVFIndex) deleteLocked(id string) {
	loc, exists := ivf.idLoc[id]
	if !exists {
		return
	}

	list := ivf.lists[loc.List]
	last := len(list) - 1
	if loc.Pos != last {
		list[loc.Pos] = list[last]
		ivf.idLoc[list[loc.Pos].ID] = ivfLoc{List: loc.List, Pos: loc.Pos}
	}
	ivf.lists[loc.List] = list[:last]
	delete(ivf.idLoc, id)
	ivf.count--
}

// Search scans the nprobe partitions nearest the query and returns the
// best k hits found there, ordered by ascending distance.
func (ivf *IVFIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	ivf.mu.RLock()
	defer ivf.mu.RUnlock()

	if ivf.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if len(query) != ivf.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: ivf.config.Dimensions, Got: len(query)}
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if ivf.count == 0 {
		return []*VectorResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if ivf.config.Metric == "cos" {
		normalizeVectorInPlace(q)
	}

	// Rank partitions by centroid distance
	type centroidDist struct {
		list int
		dist float32
	}
	dists := make([]centroidDist, len(ivf.centroids))
	for i, c := range ivf.centroids {
		dists[i] = centroidDist{list: i, dist: vectorDistance(q, c, ivf.config.Metric)}
	}
	sort.Slice(dists, func(i, j int) bool { return dists[i].dist < dists[j].dist })

	nprobe := ivf.config.NProbe
	if nprobe > len(dists) {
		nprobe = len(dists)
	}

	var results []*VectorResult
	for _, cd := range dists[:nprobe] {
		for _, entry := range ivf.lists[cd.list] {
			d := vectorDistance(q, entry.Vector, ivf.config.Metric)
			results = append(results, &VectorResult{
				ID:       entry.ID,
				Distance: d,
				Score:    distanceToScore(d, ivf.config.Metric),
			})
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
func (ivf *IVFIndex) Count() int {
	ivf.mu.RLock()
	defer ivf.mu.RUnlock()
	return ivf.count
}

// Variant returns VariantPartitioned.
func (ivf *IVFIndex) Variant() Variant {
	return VariantPartitioned
}

// Dimensions returns the vector size the index was built for.
func (ivf *IVFIndex) Dimensions() int {
	return ivf.config.Dimensions
}

// Save persists the index to disk atomically (temp file + rename)
// with a .meta sidecar describing the variant.
func (ivf *IVFIndex) Save(path string) error {
	ivf.mu.RLock()
	defer ivf.mu.RUnlock()

	if ivf.closed {
		return fmt.Errorf("index is closed")
	}

	snapshot := ivfSnapshot{
		Config:    ivf.config,
		Centroids: ivf.centroids,
		Lists:     ivf.lists,
	}
	if err := saveGob(path, &snapshot); err != nil {
		return fmt.Errorf("failed to save partitioned index: %w", err)
	}

	return saveIndexMeta(path, IndexMeta{
		Variant: VariantPartitioned,
		Config:  ivf.config,
		Count:   ivf.count,
	})
}

// LoadIVFIndex loads a partitioned index persisted by Save.
func LoadIVFIndex(path string) (*IVFIndex, error) {
	var snapshot ivfSnapshot
	if err := loadGob(path, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to load partitioned index: %w", err)
	}

	idx := &IVFIndex{
		config:    snapshot.Config,
		centroids: snapshot.Centroids,
		lists:     snapshot.Lists,
		idLoc:     make(map[string]ivfLoc),
	}
	for listIdx, list := range snapshot.Lists {
		for pos, entry := range list {
			idx.idLoc[entry.ID] = ivfLoc{List: listIdx, Pos: pos}
			idx.count++
		}
	}
	return idx, nil
}

// Close releases resources.
func (ivf *IVFIndex) Close() error {
	ivf.mu.Lock()
	defer ivf.mu.Unlock()

	if ivf.closed {
		return nil
	}
	ivf.closed = true
	ivf.centroids = nil
	ivf.lists = nil
	ivf.idLoc = nil
	return nil
}
